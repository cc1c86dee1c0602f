package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はプロセス全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// 同期対象や優先度などの利用者設定は Settings 側に持つ。
type Config struct {
	// Credentials
	CanvasAPIKey  string
	TodoistAPIKey string

	// Settings document
	SettingsPath string

	// Endpoints
	CanvasBaseURL  string // 空なら Settings.CanvasAPIHeading を使う
	TodoistBaseURL string

	// HTTP
	HTTPTimeout       time.Duration
	CanvasRatePerSec  float64
	TodoistRatePerSec float64
	HTTPMaxRetries    int
	AllowPrivateHosts bool

	// Worker
	SyncSchedule string
	ServerPort   string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 資格情報の必須チェックはコマンドごとに Require で行う。
func Load() (*Config, error) {
	cfg := &Config{
		CanvasAPIKey:      strings.TrimSpace(os.Getenv("CANVAS_API_KEY")),
		TodoistAPIKey:     strings.TrimSpace(os.Getenv("TODOIST_API_KEY")),
		SettingsPath:      getEnvString("COURSESYNC_SETTINGS", "config.yaml"),
		CanvasBaseURL:     getEnvString("CANVAS_BASE_URL", ""),
		TodoistBaseURL:    getEnvString("TODOIST_BASE_URL", "https://api.todoist.com/rest/v2"),
		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		CanvasRatePerSec:  getEnvFloat("CANVAS_RATE_PER_SEC", 5),
		TodoistRatePerSec: getEnvFloat("TODOIST_RATE_PER_SEC", 4),
		HTTPMaxRetries:    getEnvInt("HTTP_MAX_RETRIES", 3),
		AllowPrivateHosts: getEnvBool("ALLOW_PRIVATE_HOSTS", false),
		SyncSchedule:      getEnvString("SYNC_SCHEDULE", "0 6 * * *"),
		ServerPort:        getEnvString("SERVER_PORT", "8080"),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
	}

	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_TIMEOUT must be positive: %s", cfg.HTTPTimeout)
	}
	if cfg.HTTPMaxRetries < 0 {
		return nil, fmt.Errorf("HTTP_MAX_RETRIES must not be negative: %d", cfg.HTTPMaxRetries)
	}

	return cfg, nil
}

// Service は資格情報を必要とする接続先。
type Service string

const (
	ServiceCanvas  Service = "canvas"
	ServiceTodoist Service = "todoist"
)

// Require は指定した接続先のAPIキーが設定されているかを検証する。
func (c *Config) Require(services ...Service) error {
	var missing []string
	for _, s := range services {
		switch s {
		case ServiceCanvas:
			if c.CanvasAPIKey == "" {
				missing = append(missing, "CANVAS_API_KEY")
			}
		case ServiceTodoist:
			if c.TodoistAPIKey == "" {
				missing = append(missing, "TODOIST_API_KEY")
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
