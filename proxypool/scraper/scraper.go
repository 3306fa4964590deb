package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corpix/uarand"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"proxyharvest/internal/shared/logger"
	"proxyharvest/proxypool/model"
)

// Fetcher 接口定义了从一个代理列表站点抓取单页代理的行为。
type Fetcher interface {
	// Fetch 抓取第 page 页 (page < 1 视为 1) 并返回解析出的代理。
	// 解析失败的行被静默丢弃; 只有请求失败才返回 error。
	Fetch(ctx context.Context, page int) ([]model.Proxy, error)

	// Name 返回抓取器的名称，用于日志记录。
	Name() string
}

// Options configures a fetcher. A zero BaseURL means the site's real host.
type Options struct {
	BaseURL         string
	RequestInterval time.Duration
	Timeout         time.Duration
}

func (o Options) baseURL(def string) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}

func (o Options) client() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Registry returns the active fetchers in a fixed order.
func Registry(opts Options) []Fetcher {
	return []Fetcher{
		NewIP66Fetcher(opts),
		NewKxdailiFetcher(opts),
		NewKuaidailiFetcher(opts),
	}
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// Pacer keeps at least interval between the end of one request and the start of the next.
// The first Wait returns immediately. A Pacer is not safe for concurrent use.
type Pacer struct {
	interval time.Duration
	lim      *rate.Limiter
}

func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait blocks until interval has passed since the last Done, or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.lim == nil {
		return ctx.Err()
	}
	return p.lim.Wait(ctx)
}

// Done marks the end of a request; the next Wait counts from now.
func (p *Pacer) Done() {
	if p.interval <= 0 {
		return
	}
	// 新建的 limiter 只有一个令牌, 立即取走, 下一次 Wait 正好等待 interval
	p.lim = rate.NewLimiter(rate.Every(p.interval), 1)
	p.lim.Allow()
}

// getPage issues a GET with a random User-Agent and returns the body decoded to UTF-8.
// The status code is not checked: an error page simply yields no matches.
func getPage(ctx context.Context, client *http.Client, url string, header http.Header) (string, error) {
	l := logger.WithComponent("Harvest/Scraper")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", uarand.GetRandom())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.Debug().Int("status_code", resp.StatusCode).Str("url", url).Msg("Received non-200 status code.")
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("failed to decode body of %s: %w", url, err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return string(body), nil
}

func htmlHeader(acceptLanguage bool) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	if acceptLanguage {
		h.Set("Accept-Language", "zh-CN,zh;q=0.8")
	}
	return h
}
