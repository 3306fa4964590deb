package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"proxyharvest/proxypool/model"
)

// KxdailiFetcher 抓取 www.kxdaili.com 的两个栏目 (高匿 / 普通), 每次 Fetch 请求两个 URL。
// 表格每行的列依次为 IP、端口、匿名度、类型。
type KxdailiFetcher struct {
	baseURL  string
	client   *http.Client
	interval time.Duration
}

func NewKxdailiFetcher(opts Options) *KxdailiFetcher {
	return &KxdailiFetcher{
		baseURL:  opts.baseURL("http://www.kxdaili.com"),
		client:   opts.client(),
		interval: opts.RequestInterval,
	}
}

func (f *KxdailiFetcher) Name() string {
	return "kxdaili.com"
}

func (f *KxdailiFetcher) Fetch(ctx context.Context, page int) ([]model.Proxy, error) {
	page = normalizePage(page)
	urls := []string{
		fmt.Sprintf("%s/dailiip/1/%d.html", f.baseURL, page),
		fmt.Sprintf("%s/dailiip/2/%d.html", f.baseURL, page),
	}

	pacer := NewPacer(f.interval)
	proxies := make([]model.Proxy, 0)
	for _, url := range urls {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		body, err := getPage(ctx, f.client, url, htmlHeader(true))
		if err != nil {
			return nil, err
		}
		pacer.Done()
		parsed, err := parseKxdaili(body, f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML of %s: %w", url, err)
		}
		proxies = append(proxies, parsed...)
	}
	return proxies, nil
}

func parseKxdaili(body, source string) ([]model.Proxy, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	proxies := make([]model.Proxy, 0)
	doc.Find("tr").Each(func(_ int, sel *goquery.Selection) {
		cells := sel.Find("td")
		if cells.Length() < 4 {
			return
		}
		ip := strings.TrimSpace(cells.Eq(0).Text())
		port, err := model.ParsePort(cells.Eq(1).Text())
		if err != nil {
			return
		}
		p, err := model.NewProxy(strings.TrimSpace(cells.Eq(3).Text()), ip, port)
		if err != nil {
			return
		}
		proxies = append(proxies, p.WithSource(source))
	})
	return proxies, nil
}
