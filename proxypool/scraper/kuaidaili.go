package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"github.com/gocolly/colly/v2"

	"proxyharvest/internal/shared/logger"
	"proxyharvest/proxypool/model"
)

var (
	// 新版页面把代理列表放在 JS 变量 fpsList 中
	kuaidailiListPattern = regexp.MustCompile(`(?s)(?:var|let|const)\s+fpsList\s*=\s*(\[.*?\]);`)
	// 旧版页面是带属性的表格
	kuaidailiRowPattern = regexp.MustCompile(`<td[^>]*>\s*(?P<ipv4addr>\d+\.\d+\.\d+\.\d+)\s*</td>\s*<td[^>]*>\s*(?P<port>\d+)\s*</td>\s*<td[^>]*>[^<]*</td>\s*<td[^>]*>\s*(?P<protocol>[\w, ]+?)\s*</td>`)
)

type kuaidailiEntry struct {
	IP   string      `json:"ip"`
	Port json.Number `json:"port"`
}

// KuaidailiFetcher 抓取 www.kuaidaili.com 的 inha / intr 两个栏目, 每次 Fetch 使用独立的 colly collector。
type KuaidailiFetcher struct {
	baseURL  string
	timeout  time.Duration
	interval time.Duration
}

func NewKuaidailiFetcher(opts Options) *KuaidailiFetcher {
	return &KuaidailiFetcher{
		baseURL:  opts.baseURL("https://www.kuaidaili.com"),
		timeout:  opts.client().Timeout,
		interval: opts.RequestInterval,
	}
}

func (f *KuaidailiFetcher) Name() string {
	return "kuaidaili.com"
}

func (f *KuaidailiFetcher) Fetch(ctx context.Context, page int) ([]model.Proxy, error) {
	l := logger.WithComponent("Harvest/Scraper")
	page = normalizePage(page)
	urls := []string{
		fmt.Sprintf("%s/free/inha/%d/", f.baseURL, page),
		fmt.Sprintf("%s/free/intr/%d/", f.baseURL, page),
	}

	c := colly.NewCollector(
		colly.UserAgent(uarand.GetRandom()),
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.timeout)
	// 非 2xx 页面同样交给 OnResponse 解析, 与其他抓取器保持一致
	c.ParseHTTPErrorResponse = true

	proxies := make([]model.Proxy, 0)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Content-Type", "text/html; charset=utf-8")
	})
	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode != 200 {
			l.Debug().Int("status_code", r.StatusCode).Str("url", r.Request.URL.String()).Msg("Received non-200 status code.")
		}
		proxies = append(proxies, parseKuaidaili(r.Body, f.Name())...)
	})

	pacer := NewPacer(f.interval)
	for _, url := range urls {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		if err := c.Visit(url); err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		pacer.Done()
	}
	return proxies, nil
}

func parseKuaidaili(body []byte, source string) []model.Proxy {
	if m := kuaidailiListPattern.FindSubmatch(body); m != nil {
		var entries []kuaidailiEntry
		if err := json.Unmarshal(m[1], &entries); err == nil {
			proxies := make([]model.Proxy, 0, len(entries))
			for _, e := range entries {
				port, err := model.ParsePort(e.Port.String())
				if err != nil {
					continue
				}
				p, err := model.NewProxy("http", strings.TrimSpace(e.IP), port)
				if err != nil {
					continue
				}
				proxies = append(proxies, p.WithSource(source))
			}
			return proxies
		}
	}

	proxies := make([]model.Proxy, 0)
	ipIdx := kuaidailiRowPattern.SubexpIndex("ipv4addr")
	portIdx := kuaidailiRowPattern.SubexpIndex("port")
	protoIdx := kuaidailiRowPattern.SubexpIndex("protocol")
	for _, m := range kuaidailiRowPattern.FindAllSubmatch(body, -1) {
		port, err := model.ParsePort(string(m[portIdx]))
		if err != nil {
			continue
		}
		p, err := model.NewProxy(string(m[protoIdx]), string(m[ipIdx]), port)
		if err != nil {
			continue
		}
		proxies = append(proxies, p.WithSource(source))
	}
	return proxies
}
