// Пакет config — загрузка и валидация конфигурации Condo Portal
// из переменных окружения (префикс CP_).
package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые бэкенды хранилища токенов.
const (
	TokenStoreMemory   = "memory"
	TokenStorePostgres = "postgres"
	TokenStoreRedis    = "redis"
)

// Config содержит все параметры конфигурации Condo Portal.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int `env:"CP_PORT, default=8080"`
	// Уровень логирования (debug, info, warn, error)
	LogLevelName string `env:"CP_LOG_LEVEL, default=info"`
	// Формат логов (json, text)
	LogFormat string `env:"CP_LOG_FORMAT, default=json"`

	// LogLevel — разобранный уровень логирования (заполняется в Load).
	LogLevel slog.Level

	// --- Удалённый REST API ---

	// Базовый URL API (например, https://rmsb.example.com/api)
	APIBaseURL string `env:"CP_API_BASE_URL"`
	// Таймаут исходящих HTTP-запросов к API
	APITimeout time.Duration `env:"CP_API_TIMEOUT, default=30s"`
	// Путь, по которому мониторинг зависимостей проверяет API
	APIHealthPath string `env:"CP_API_HEALTH_PATH, default=/health"`

	// --- Сессии ---

	// Ключ шифрования session cookie (пустой — случайный ключ при старте)
	SessionSecret string `env:"CP_SESSION_SECRET"`
	// Время жизни cookie и сохранённого токена
	SessionTTL time.Duration `env:"CP_SESSION_TTL, default=24h"`
	// Максимальное число Session Store в памяти
	SessionCacheSize int `env:"CP_SESSION_CACHE_SIZE, default=10000"`
	// Время жизни Session Store в памяти (после — повторное восстановление по токену)
	SessionIdleTTL time.Duration `env:"CP_SESSION_IDLE_TTL, default=30m"`
	// Secure flag для cookie
	CookieSecure bool `env:"CP_COOKIE_SECURE, default=false"`

	// --- Хранилище токенов ---

	// Бэкенд: memory, postgres, redis
	TokenStore string `env:"CP_TOKEN_STORE, default=memory"`
	// Период очистки просроченных токенов (postgres)
	TokenPurgeInterval time.Duration `env:"CP_TOKEN_PURGE_INTERVAL, default=10m"`

	// --- PostgreSQL ---

	DBHost     string `env:"CP_DB_HOST"`
	DBPort     int    `env:"CP_DB_PORT, default=5432"`
	DBName     string `env:"CP_DB_NAME"`
	DBUser     string `env:"CP_DB_USER"`
	DBPassword string `env:"CP_DB_PASSWORD"`
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string `env:"CP_DB_SSL_MODE, default=disable"`

	// --- Redis ---

	RedisAddr string `env:"CP_REDIS_ADDR, default=localhost:6379"`
	RedisDB   int    `env:"CP_REDIS_DB, default=0"`

	// --- Мониторинг зависимостей ---

	DephealthGroup         string        `env:"CP_DEPHEALTH_GROUP, default=condo"`
	DephealthCheckInterval time.Duration `env:"CP_DEPHEALTH_CHECK_INTERVAL, default=15s"`

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration `env:"CP_SHUTDOWN_TIMEOUT, default=5s"`
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора переменных окружения: %w", err)
	}

	var err error
	cfg.LogLevel, err = parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return nil, fmt.Errorf("CP_LOG_LEVEL: %w", err)
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("CP_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CP_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// CP_API_BASE_URL — обязательный
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("CP_API_BASE_URL: обязательная переменная окружения не задана")
	}
	parsed, err := url.Parse(cfg.APIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("CP_API_BASE_URL: некорректный URL %q", cfg.APIBaseURL)
	}
	// Убираем trailing slash
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("CP_SESSION_TTL: значение должно быть положительным")
	}
	if cfg.SessionIdleTTL <= 0 {
		return nil, fmt.Errorf("CP_SESSION_IDLE_TTL: значение должно быть положительным")
	}
	if cfg.SessionCacheSize < 1 {
		return nil, fmt.Errorf("CP_SESSION_CACHE_SIZE: значение %d должно быть больше 0", cfg.SessionCacheSize)
	}

	switch cfg.TokenStore {
	case TokenStoreMemory, TokenStoreRedis:
	case TokenStorePostgres:
		if err := cfg.validatePostgres(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("CP_TOKEN_STORE: недопустимое значение %q, допустимые: memory, postgres, redis", cfg.TokenStore)
	}

	return cfg, nil
}

// validatePostgres проверяет параметры PostgreSQL (нужны только для CP_TOKEN_STORE=postgres).
func (c *Config) validatePostgres() error {
	required := map[string]string{
		"CP_DB_HOST":     c.DBHost,
		"CP_DB_NAME":     c.DBName,
		"CP_DB_USER":     c.DBUser,
		"CP_DB_PASSWORD": c.DBPassword,
	}
	for _, key := range []string{"CP_DB_HOST", "CP_DB_NAME", "CP_DB_USER", "CP_DB_PASSWORD"} {
		if required[key] == "" {
			return fmt.Errorf("%s: обязательная переменная окружения не задана", key)
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[c.DBSSLMode] {
		return fmt.Errorf("CP_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", c.DBSSLMode)
	}
	return nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL (для golang-migrate и лейблов метрик).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
