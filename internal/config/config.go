// Пакет config — загрузка и валидация конфигурации Question Module
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Question Module.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (диапазон 8040-8049)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Пользователь БД
	DBUser string
	// Пароль БД
	DBPassword string
	// Режим SSL (disable, require, verify-full)
	DBSSLMode string
	// Таймаут одного запроса к БД; медленный backend деградирует
	// до cache-miss поведения, а не виснет (по умолчанию 5s)
	DBQueryTimeout time.Duration

	// --- Кэш ---

	// Максимальное количество записей TieredCache (по умолчанию 1000)
	CacheCapacity int
	// Доля записей, вытесняемых за один LRU-проход (по умолчанию 0.25)
	CacheEvictFraction float64
	// TTL маппингов имя → id (по умолчанию 24h)
	CacheTTLIDMappings time.Duration
	// TTL опций фильтров (по умолчанию 6h)
	CacheTTLFilterOptions time.Duration
	// TTL счётчиков (по умолчанию 10m)
	CacheTTLCounts time.Duration
	// TTL страниц вопросов (по умолчанию 2m)
	CacheTTLQuestions time.Duration
	// Размер LRU-кэша отдельных вопросов (по умолчанию 500)
	RecordCacheSize int
	// TTL LRU-кэша отдельных вопросов (по умолчанию 30m)
	RecordCacheTTL time.Duration

	// --- Фоновое обслуживание кэша ---

	// Интервал очистки истёкших записей (по умолчанию 1m)
	CacheSweepInterval time.Duration
	// Интервал прогрева типичных фильтров (по умолчанию 15m)
	CacheWarmInterval time.Duration
	// Специальности для прогрева, через запятую (опционально)
	WarmSpecialties []string

	// --- Оценка счётчиков ---

	// Размер случайной выборки для приближённого подсчёта (по умолчанию 200)
	CountSampleSize int

	// --- JWT (опционально) ---

	// URL JWKS endpoint для проверки подписи JWT.
	// Пустое значение — аутентификация отключена, все запросы анонимны.
	JWKSURL string

	// Таймаут HTTP-клиента JWKS (по умолчанию 10s)
	JWKSClientTimeout time.Duration
	// Интервал фонового обновления JWKS-ключей (по умолчанию 1h)
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT (по умолчанию 30s)
	JWTLeeway time.Duration

	// --- Dephealth ---

	// Интервал проверки зависимостей (по умолчанию 30s)
	DephealthCheckInterval time.Duration
	// Имя группы в метриках dephealth
	DephealthGroup string
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// QB_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("QB_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("QB_PORT: %w", err)
	}

	// QB_LOG_LEVEL — уровень логирования (по умолчанию info)
	logLevel := getEnvDefault("QB_LOG_LEVEL", "info")
	cfg.LogLevel, err = parseLogLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("QB_LOG_LEVEL: %w", err)
	}

	// QB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("QB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("QB_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("QB_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("QB_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("QB_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("QB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	// QB_DB_HOST — хост PostgreSQL (обязательная)
	cfg.DBHost, err = getEnvRequired("QB_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("QB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("QB_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("QB_DB_NAME", "examtrainer")
	// QB_DB_USER — пользователь БД (обязательная)
	cfg.DBUser, err = getEnvRequired("QB_DB_USER")
	if err != nil {
		return nil, err
	}
	// QB_DB_PASSWORD — пароль БД (обязательная)
	cfg.DBPassword, err = getEnvRequired("QB_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("QB_DB_SSLMODE", "disable")
	cfg.DBQueryTimeout, err = getEnvDuration("QB_DB_QUERY_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_DB_QUERY_TIMEOUT: %w", err)
	}

	// --- Кэш ---

	cfg.CacheCapacity, err = getEnvInt("QB_CACHE_CAPACITY", 1000)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_CAPACITY: %w", err)
	}
	cfg.CacheEvictFraction, err = getEnvFloat("QB_CACHE_EVICT_FRACTION", 0.25)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_EVICT_FRACTION: %w", err)
	}
	cfg.CacheTTLIDMappings, err = getEnvDuration("QB_CACHE_TTL_ID_MAPPINGS", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_TTL_ID_MAPPINGS: %w", err)
	}
	cfg.CacheTTLFilterOptions, err = getEnvDuration("QB_CACHE_TTL_FILTER_OPTIONS", 6*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_TTL_FILTER_OPTIONS: %w", err)
	}
	cfg.CacheTTLCounts, err = getEnvDuration("QB_CACHE_TTL_COUNTS", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_TTL_COUNTS: %w", err)
	}
	cfg.CacheTTLQuestions, err = getEnvDuration("QB_CACHE_TTL_QUESTIONS", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_TTL_QUESTIONS: %w", err)
	}
	// Относительный порядок TTL-ярусов — контракт кэша
	if cfg.CacheTTLIDMappings < cfg.CacheTTLFilterOptions ||
		cfg.CacheTTLFilterOptions < cfg.CacheTTLCounts ||
		cfg.CacheTTLCounts < cfg.CacheTTLQuestions {
		return nil, fmt.Errorf("TTL-ярусы кэша должны убывать: id_mappings >= filter_options >= counts >= questions")
	}

	cfg.RecordCacheSize, err = getEnvInt("QB_RECORD_CACHE_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("QB_RECORD_CACHE_SIZE: %w", err)
	}
	cfg.RecordCacheTTL, err = getEnvDuration("QB_RECORD_CACHE_TTL", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QB_RECORD_CACHE_TTL: %w", err)
	}

	// --- Фоновое обслуживание кэша ---

	cfg.CacheSweepInterval, err = getEnvDuration("QB_CACHE_SWEEP_INTERVAL", 1*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_SWEEP_INTERVAL: %w", err)
	}
	cfg.CacheWarmInterval, err = getEnvDuration("QB_CACHE_WARM_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("QB_CACHE_WARM_INTERVAL: %w", err)
	}
	// QB_WARM_SPECIALTIES — специальности для прогрева, через запятую
	if raw := getEnvDefault("QB_WARM_SPECIALTIES", ""); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.WarmSpecialties = append(cfg.WarmSpecialties, s)
			}
		}
	}

	// --- Оценка счётчиков ---

	cfg.CountSampleSize, err = getEnvInt("QB_COUNT_SAMPLE_SIZE", 200)
	if err != nil {
		return nil, fmt.Errorf("QB_COUNT_SAMPLE_SIZE: %w", err)
	}
	if cfg.CountSampleSize <= 0 {
		return nil, fmt.Errorf("QB_COUNT_SAMPLE_SIZE: значение должно быть > 0")
	}

	// --- JWT ---

	// QB_JWKS_URL — JWKS endpoint (опционально; пусто = auth отключён)
	cfg.JWKSURL = getEnvDefault("QB_JWKS_URL", "")

	cfg.JWKSClientTimeout, err = getEnvDuration("QB_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("QB_JWKS_REFRESH_INTERVAL", 1*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("QB_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWTLeeway, err = getEnvDuration("QB_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_JWT_LEEWAY: %w", err)
	}

	// --- Dephealth ---

	cfg.DephealthCheckInterval, err = getEnvDuration("QB_DEPHEALTH_CHECK_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("QB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}
	cfg.DephealthGroup = getEnvDefault("QB_DEPHEALTH_GROUP", "examtrainer")

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvFloat возвращает вещественное значение переменной окружения или значение по умолчанию.
func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное вещественное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
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
