package scraper

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"proxyharvest/proxypool/model"
)

var ip66Pattern = regexp.MustCompile(`<td>(?P<ipv4addr>\d+\.\d+\.\d+\.\d+)</td><td>(?P<port>\d+)</td>`)

// IP66Fetcher 抓取 www.66ip.cn 的免费代理, 每页一个 URL, 协议固定为 HTTP。
type IP66Fetcher struct {
	baseURL string
	client  *http.Client
}

func NewIP66Fetcher(opts Options) *IP66Fetcher {
	return &IP66Fetcher{
		baseURL: opts.baseURL("http://www.66ip.cn"),
		client:  opts.client(),
	}
}

func (f *IP66Fetcher) Name() string {
	return "66ip.cn"
}

func (f *IP66Fetcher) Fetch(ctx context.Context, page int) ([]model.Proxy, error) {
	url := fmt.Sprintf("%s/%d.html", f.baseURL, normalizePage(page))
	body, err := getPage(ctx, f.client, url, htmlHeader(true))
	if err != nil {
		return nil, err
	}
	return parseIP66(body, f.Name()), nil
}

func parseIP66(body, source string) []model.Proxy {
	proxies := make([]model.Proxy, 0)
	ipIdx := ip66Pattern.SubexpIndex("ipv4addr")
	portIdx := ip66Pattern.SubexpIndex("port")
	for _, m := range ip66Pattern.FindAllStringSubmatch(body, -1) {
		port, err := model.ParsePort(m[portIdx])
		if err != nil {
			continue
		}
		p, err := model.NewProxy("http", m[ipIdx], port)
		if err != nil {
			continue
		}
		proxies = append(proxies, p.WithSource(source))
	}
	return proxies
}
