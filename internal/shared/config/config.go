package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"proxyharvest/internal/shared/types"
)

const (
	DefaultPath = "configs/harvest.ini"
	envPath     = "HARVEST_CONFIG"
)

// Path 返回配置文件路径, 可通过 HARVEST_CONFIG 覆盖。
func Path() string {
	if p := os.Getenv(envPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load 按 defaults -> ini 文件 -> .env/环境变量 的顺序构建配置。
func Load(fileName string) (*types.Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := types.DefaultConfig()
	if err := LoadIni(cfg, fileName); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadIni maps the ini file over cfg. Keys absent from the file keep their current value.
// A missing file is not an error.
func LoadIni(cfg *types.Config, fileName string) error {
	if _, err := os.Stat(fileName); os.IsNotExist(err) {
		return nil
	}
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", fileName, err)
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map config file '%s': %w", fileName, err)
	}
	return nil
}

func applyEnv(cfg *types.Config) {
	if lvl := os.Getenv("HARVEST_LOG_LEVEL"); lvl != "" {
		cfg.Level = lvl
	}
	if format := os.Getenv("HARVEST_LOG_FORMAT"); format != "" {
		cfg.Format = format
	}
	overrideFromEnvInt(&cfg.MaxPage, "HARVEST_MAX_PAGE")
	overrideFromEnvInt(&cfg.QueueSize, "HARVEST_QUEUE_SIZE")
	overrideFromEnvInt(&cfg.MetricsConf.Port, "HARVEST_METRICS_PORT")
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
