package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"proxyharvest/internal/shared/types"
)

const serviceName = "proxyharvest"

// Init installs the global logger on stderr.
// An empty level means info; an unknown one falls back to info and is reported once.
func Init(cfg types.LogConf) error {
	return initWith(cfg, os.Stderr)
}

func initWith(cfg types.LogConf, out io.Writer) error {
	level, known := parseLevel(cfg.Level)

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	log.Logger = zerolog.New(newWriter(cfg.Format, out)).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	if !known {
		log.Warn().Str("level", cfg.Level).Msg("Unknown log level, defaulting to info.")
	}
	log.Debug().Str("level", level.String()).Str("format", cfg.Format).Msg("Logger initialized.")
	return nil
}

func parseLevel(s string) (zerolog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, true
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, false
	}
	return level, true
}

// newWriter 返回日志输出: json 直接写原始 JSON 行, 其余按控制台格式输出。
func newWriter(format string, out io.Writer) io.Writer {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return out
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.DateTime,
	}
}

// WithComponent returns a child logger tagged with component=name.
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

func Debug() *zerolog.Event { return log.Debug() }

func Info() *zerolog.Event { return log.Info() }

func Warn() *zerolog.Event { return log.Warn() }

func Error() *zerolog.Event { return log.Error() }

// Fatal exits the process after Msg.
func Fatal() *zerolog.Event { return log.Fatal() }
