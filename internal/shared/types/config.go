package types

import (
	"fmt"
	"time"
)

// PipelineConf 包含抓取端 (producer) 的配置
type PipelineConf struct {
	MaxPage             int `ini:"max_page"`              // 每个抓取器翻页上限 (含)
	PageIntervalMs      int `ini:"page_interval_ms"`      // 同一抓取器两页之间的间隔
	RequestIntervalMs   int `ini:"request_interval_ms"`   // 同一次 Fetch 内多个 URL 之间的间隔
	FetchTimeoutSeconds int `ini:"fetch_timeout_seconds"` // 抓取单个页面的超时
	QueueSize           int `ini:"queue_size"`            // producer 与 consumer 之间的队列容量
}

// ProbeConf 包含验证端 (consumer) 的配置
type ProbeConf struct {
	TimeoutSeconds     int  `ini:"timeout_seconds"`
	IdleTimeoutSeconds int  `ini:"idle_timeout_seconds"`
	ExitOnIdle         bool `ini:"exit_on_idle"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level  string `ini:"level"`
	Format string `ini:"format"` // console 或 json
}

// MetricsConf 控制 Prometheus 指标端口, 0 表示关闭
type MetricsConf struct {
	Port int `ini:"port"`
}

// Config 是 harvest 的统一配置结构体
type Config struct {
	PipelineConf `ini:"pipeline"`
	ProbeConf    `ini:"probe"`
	LogConf      `ini:"log"`
	MetricsConf  `ini:"metrics"`
}

// DefaultConfig returns the configuration used when no file or env override is present.
func DefaultConfig() *Config {
	return &Config{
		PipelineConf: PipelineConf{
			MaxPage:             5,
			PageIntervalMs:      1000,
			RequestIntervalMs:   1000,
			FetchTimeoutSeconds: 20,
			QueueSize:           1024,
		},
		ProbeConf: ProbeConf{
			TimeoutSeconds:     10,
			IdleTimeoutSeconds: 5,
		},
		LogConf: LogConf{Level: "info", Format: "console"},
	}
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.MaxPage < 1:
		return fmt.Errorf("pipeline.max_page must be positive, got %d", c.MaxPage)
	case c.QueueSize < 1:
		return fmt.Errorf("pipeline.queue_size must be positive, got %d", c.QueueSize)
	case c.PageIntervalMs < 0 || c.RequestIntervalMs < 0:
		return fmt.Errorf("pipeline intervals must not be negative")
	case c.FetchTimeoutSeconds < 1:
		return fmt.Errorf("pipeline.fetch_timeout_seconds must be positive, got %d", c.FetchTimeoutSeconds)
	case c.TimeoutSeconds < 1:
		return fmt.Errorf("probe.timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	case c.IdleTimeoutSeconds < 1:
		return fmt.Errorf("probe.idle_timeout_seconds must be positive, got %d", c.IdleTimeoutSeconds)
	case c.MetricsConf.Port < 0 || c.MetricsConf.Port > 65535:
		return fmt.Errorf("metrics.port out of range: %d", c.MetricsConf.Port)
	}
	return nil
}

func (c PipelineConf) PageInterval() time.Duration {
	return time.Duration(c.PageIntervalMs) * time.Millisecond
}

func (c PipelineConf) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMs) * time.Millisecond
}

func (c PipelineConf) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c ProbeConf) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ProbeConf) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}
