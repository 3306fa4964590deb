package validator

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/corpix/uarand"
	"github.com/rs/zerolog"

	"proxyharvest/internal/metrics"
	"proxyharvest/internal/shared/logger"
	"proxyharvest/internal/shared/types"
	"proxyharvest/proxypool/model"
)

// Summary counts what a Consume call saw.
type Summary struct {
	Received  int
	Reachable int
	Rejected  int
	Failed    int
}

type Validator struct {
	timeout     time.Duration
	idleTimeout time.Duration
	exitOnIdle  bool
	// nil uses the system roots
	tlsConfig *tls.Config
}

func NewValidator(cfg types.ProbeConf) *Validator {
	return &Validator{
		timeout:     cfg.Timeout(),
		idleTimeout: cfg.IdleTimeout(),
		exitOnIdle:  cfg.ExitOnIdle,
	}
}

// Consume 从队列中逐个取出代理并访问 target, 直到队列关闭或 ctx 结束。
// 空闲超时默认只记录日志并继续等待; exitOnIdle 为 true 时直接退出。
func (v *Validator) Consume(ctx context.Context, in <-chan model.Proxy, target string) Summary {
	l := logger.WithComponent("Harvest/Validator")
	var sum Summary

	idle := time.NewTimer(v.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Warn().Err(ctx.Err()).Msg("Consumer cancelled.")
			return sum
		case p, ok := <-in:
			if !ok {
				l.Info().Msg("No proxy left.")
				return sum
			}
			metrics.QueueDepth.Set(float64(len(in)))
			sum.Received++
			v.probe(ctx, l, target, p, &sum)
			idle.Reset(v.idleTimeout)
		case <-idle.C:
			if v.exitOnIdle {
				l.Info().Dur("idle", v.idleTimeout).Msg("Queue idle, consumer exiting.")
				return sum
			}
			l.Debug().Dur("idle", v.idleTimeout).Msg("No proxy received, still waiting.")
			idle.Reset(v.idleTimeout)
		}
	}
}

func (v *Validator) probe(ctx context.Context, l zerolog.Logger, target string, p model.Proxy, sum *Summary) {
	start := time.Now()
	status, err := v.Visit(ctx, target, p)
	latency := time.Since(start)

	switch {
	case err != nil:
		sum.Failed++
		metrics.Probes.WithLabelValues(metrics.OutcomeFailed).Inc()
		l.Info().Err(err).Str("proxy", p.String()).Msg("Probe failed.")
	case status >= 200 && status < 400:
		sum.Reachable++
		metrics.Probes.WithLabelValues(metrics.OutcomeReachable).Inc()
		l.Info().Str("proxy", p.String()).Int("status", status).Dur("latency", latency).Msg("Probe succeeded.")
	default:
		sum.Rejected++
		metrics.Probes.WithLabelValues(metrics.OutcomeRejected).Inc()
		l.Info().Str("proxy", p.String()).Int("status", status).Msg("Probe rejected.")
	}
}

// Visit issues one GET to target. Only https requests are routed through p;
// plain http targets are fetched directly.
func (v *Validator) Visit(ctx context.Context, target string, p model.Proxy) (int, error) {
	u, err := url.Parse(target)
	if err != nil {
		return 0, fmt.Errorf("invalid target url %q: %w", target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0, fmt.Errorf("invalid target url %q: need an absolute http(s) url", target)
	}

	proxyURL := p.URL()
	dialer := &net.Dialer{
		Timeout:   v.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: func(r *http.Request) (*url.URL, error) {
			if r.URL.Scheme == "https" {
				return proxyURL, nil
			}
			return nil, nil
		},
		DialContext:         dialer.DialContext,
		TLSClientConfig:     v.tlsConfig,
		TLSHandshakeTimeout: v.timeout / 2,
		DisableKeepAlives:   true,
	}
	defer transport.CloseIdleConnections()

	client := &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create probe request: %w", err)
	}
	req.Header.Set("User-Agent", uarand.GetRandom())

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("visit %s via %s: %w", u.Host, p, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
