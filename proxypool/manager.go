package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"proxyharvest/internal/metrics"
	"proxyharvest/internal/shared/logger"
	"proxyharvest/internal/shared/types"
	"proxyharvest/proxypool/model"
	"proxyharvest/proxypool/scraper"
)

// Manager 是抓取端的总控制器: 为每个 Fetcher 启动一个 goroutine,
// 依次抓取第 1..maxPage 页并把结果送入共享队列, 全部结束后关闭队列。
type Manager struct {
	fetchers     []scraper.Fetcher
	maxPage      int
	pageInterval time.Duration
}

// NewManager creates a manager over the given fetchers.
func NewManager(cfg types.PipelineConf, fetchers []scraper.Fetcher) *Manager {
	maxPage := cfg.MaxPage
	if maxPage < 1 {
		maxPage = 1
	}
	return &Manager{
		fetchers:     fetchers,
		maxPage:      maxPage,
		pageInterval: cfg.PageInterval(),
	}
}

// Run blocks until every fetcher has finished its page range, then closes out.
// Fetch failures are logged and skipped. It returns ctx.Err() if it stopped because ctx was done.
func (m *Manager) Run(ctx context.Context, out chan<- model.Proxy) error {
	defer close(out)

	l := logger.WithComponent("Harvest/Manager").With().Str("run_id", uuid.New().String()).Logger()
	l.Info().Int("fetchers", len(m.fetchers)).Int("max_page", m.maxPage).Msg("Manager starting...")

	var g errgroup.Group
	for _, f := range m.fetchers {
		g.Go(func() error {
			return m.runFetcher(ctx, l, f, out)
		})
	}
	// 只有 ctx 结束时 runFetcher 才返回 error
	if err := g.Wait(); err != nil {
		l.Warn().Err(err).Msg("Manager stopped before all pages were fetched.")
		return err
	}
	l.Info().Msg("All fetchers finished, closing queue.")
	return nil
}

// runFetcher pages through one site. Records of page N are queued before page N+1 is requested,
// and the page interval is counted from the moment page N is done.
// It returns ctx.Err() when stopped early; fetch failures are not returned.
func (m *Manager) runFetcher(ctx context.Context, l zerolog.Logger, f scraper.Fetcher, out chan<- model.Proxy) error {
	l = l.With().Str("source", f.Name()).Logger()
	pacer := scraper.NewPacer(m.pageInterval)

	for page := 1; page <= m.maxPage; page++ {
		if err := pacer.Wait(ctx); err != nil {
			return err
		}

		proxies, err := f.Fetch(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.FetchErrors.WithLabelValues(f.Name()).Inc()
			l.Warn().Err(err).Int("page", page).Msg("Fetch failed, moving to next page.")
			pacer.Done()
			continue
		}
		l.Debug().Int("page", page).Int("count", len(proxies)).Msg("Page fetched.")

		for _, p := range proxies {
			select {
			case out <- p:
				metrics.ProxiesDiscovered.WithLabelValues(f.Name()).Inc()
				metrics.QueueDepth.Set(float64(len(out)))
				l.Info().Str("proxy", p.String()).Msg("Proxy discovered.")
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		pacer.Done()
	}
	return nil
}
