package config

import (
	"VoyagerGuard/pkg/cache"
	"VoyagerGuard/pkg/logger"
	"VoyagerGuard/pkg/util"
	"log"
	"os"
	"time"
)

// DispatchConfig 调度与重试参数
type DispatchConfig struct {
	// FanOut 单次派发的并发上限。紧凑通道默认只并发前 3 个联系人，控制短信分段成本
	FanOut int `env:"DISPATCH_FAN_OUT"`
	// CompactMaxLen 紧凑报文长度预算，约 3 条短信分段
	CompactMaxLen int `env:"COMPACT_MAX_LEN"`
	// LocationTimeout 实时定位等待上限，超时回退缓存
	LocationTimeout time.Duration `env:"LOCATION_TIMEOUT_SECONDS"`
	// RetryInterval 队列重试退避间隔
	RetryInterval time.Duration `env:"RETRY_INTERVAL_SECONDS"`
	// MaxRetries 重试上限，超过后标记终态 failed
	MaxRetries int `env:"MAX_RETRIES"`
	// RetryScanSpec 重试扫描 cron 表达式
	RetryScanSpec string `env:"RETRY_SCAN_SPEC"`
}

// Config 进程级配置，启动时构造一次并按引用传递，不做全局单例
type Config struct {
	Addr        string `env:"ADDR"`
	Mode        string `env:"MODE"`
	APIPrefix   string `env:"API_PREFIX"`
	DBDriver    string `env:"DB_DRIVER"`
	DSN         string `env:"DSN"`
	DefaultLang string `env:"DEFAULT_LANG"`

	Log   logger.LogConfig
	Cache cache.Config

	Dispatch DispatchConfig

	ZonesPath string `env:"DANGER_ZONES_PATH"`
	GeoIPPath string `env:"GEOIP_DB_PATH"`

	BackupEnabled  bool   `env:"BACKUP_ENABLED"`
	BackupPath     string `env:"BACKUP_PATH"`
	BackupSchedule string `env:"BACKUP_SCHEDULE"`

	ArchiveEnabled bool `env:"ARCHIVE_ENABLED"`
}

// Load 加载 .env 与环境变量
func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{
		Addr:        util.GetEnvDefault("ADDR", ":8080"),
		Mode:        util.GetEnvDefault("MODE", "debug"),
		APIPrefix:   util.GetEnvDefault("API_PREFIX", "/api/v1"),
		DBDriver:    util.GetEnvDefault("DB_DRIVER", "sqlite"),
		DSN:         util.GetEnv("DSN"),
		DefaultLang: util.GetEnvDefault("DEFAULT_LANG", "en"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		Cache: cache.Config{
			Type: util.GetEnvDefault("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:     util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
				Password: util.GetEnv("REDIS_PASSWORD"),
				DB:       int(util.GetIntEnv("REDIS_DB")),
			},
			Local: cache.LocalConfig{
				DefaultExpiration: 0, // 位置缓存不过期，永远保留最后已知位置
				CleanupInterval:   10 * time.Minute,
			},
		},
		Dispatch: DispatchConfig{
			FanOut:          intEnvDefault("DISPATCH_FAN_OUT", 3),
			CompactMaxLen:   intEnvDefault("COMPACT_MAX_LEN", 480),
			LocationTimeout: durationEnvDefault("LOCATION_TIMEOUT_SECONDS", 8*time.Second),
			RetryInterval:   durationEnvDefault("RETRY_INTERVAL_SECONDS", 60*time.Second),
			MaxRetries:      intEnvDefault("MAX_RETRIES", 5),
			RetryScanSpec:   util.GetEnvDefault("RETRY_SCAN_SPEC", "@every 1m"),
		},
		ZonesPath:      util.GetEnvDefault("DANGER_ZONES_PATH", "data/danger_zones.json"),
		GeoIPPath:      util.GetEnv("GEOIP_DB_PATH"),
		BackupEnabled:  util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:     util.GetEnvDefault("BACKUP_PATH", "backups"),
		BackupSchedule: util.GetEnvDefault("BACKUP_SCHEDULE", "0 3 * * *"),
		ArchiveEnabled: util.GetBoolEnv("ARCHIVE_ENABLED"),
	}
	return cfg, nil
}

func intEnvDefault(key string, def int) int {
	if v := util.GetIntEnv(key); v > 0 {
		return int(v)
	}
	return def
}

func durationEnvDefault(key string, def time.Duration) time.Duration {
	if v, ok := util.GetDurationEnv(key); ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	return def
}
