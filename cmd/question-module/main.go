// Точка входа Question Module — модуль фильтрации и подсчёта вопросов ExamTrainer.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// собирает кэш и сервисный слой, запускает фоновый прогрев кэша,
// topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/examtrainer/question-module/internal/api/handlers"
	"github.com/bigkaa/examtrainer/question-module/internal/api/middleware"
	"github.com/bigkaa/examtrainer/question-module/internal/cache"
	"github.com/bigkaa/examtrainer/question-module/internal/config"
	"github.com/bigkaa/examtrainer/question-module/internal/database"
	"github.com/bigkaa/examtrainer/question-module/internal/domain/model"
	"github.com/bigkaa/examtrainer/question-module/internal/repository"
	"github.com/bigkaa/examtrainer/question-module/internal/server"
	"github.com/bigkaa/examtrainer/question-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Question Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Кэш: многоярусное хранилище + фасад с TTL по классам данных
	tiered := cache.New(cfg.CacheCapacity, cfg.CacheEvictFraction, logger)
	facade := cache.NewFacade(tiered, cache.TTLConfig{
		IDMappings:    cfg.CacheTTLIDMappings,
		FilterOptions: cfg.CacheTTLFilterOptions,
		Counts:        cfg.CacheTTLCounts,
		Questions:     cfg.CacheTTLQuestions,
	}, logger)

	// 6. Repositories
	questionRepo := repository.NewQuestionRepository(pool)
	historyRepo := repository.NewUserHistoryRepository(pool)

	// 7. Services
	engine := service.NewFilterEngine(questionRepo, facade, logger)
	reconciler := service.NewStatusReconciler(historyRepo, logger)
	recordCache := service.NewQuestionRecordCache(cfg.RecordCacheSize, cfg.RecordCacheTTL)
	questionSvc := service.NewQuestionService(
		questionRepo, engine, reconciler, facade, recordCache,
		cfg.CountSampleSize, cfg.DBQueryTimeout, logger,
	)

	// 8. Фоновый обслуживатель кэша: очистка протухших записей + прогрев
	// счётчиков для типичных фильтров (последние два года, приоритетные
	// специальности из QB_WARM_SPECIALTIES).
	warmSpecs := cache.RecentYearSpecs(time.Now(), cfg.WarmSpecialties)
	warmer := cache.NewWarmer(
		tiered,
		func(ctx context.Context, spec model.FilterSpec) error {
			return questionSvc.Warm(ctx, spec)
		},
		warmSpecs,
		cfg.CacheSweepInterval,
		cfg.CacheWarmInterval,
		logger,
	)
	warmer.Start(ctx)
	defer warmer.Stop()

	// 9. topologymetrics — мониторинг зависимостей (PostgreSQL)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"question-module",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
			defer dephealthSvc.Stop()
		}
	}

	// 10. Health handler с PostgreSQL readiness checker
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))

	// 11. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, questionSvc, logger)

	// 12. Middleware: метрики всегда, JWT — если задан QB_JWKS_URL
	middlewares := []func(http.Handler) http.Handler{
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
	}
	if cfg.JWKSURL != "" {
		jwtAuth, jwtErr := middleware.NewJWTAuth(
			cfg.JWKSURL,
			cfg.JWKSClientTimeout,
			cfg.JWKSRefreshInterval,
			cfg.JWTLeeway,
			logger,
		)
		if jwtErr != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", jwtErr.Error()))
			os.Exit(1)
		}
		middlewares = append(middlewares, jwtAuth.Middleware())
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		logger.Warn("QB_JWKS_URL не задан, все запросы обрабатываются как анонимные")
	}

	// 13. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, middlewares...)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Question Module остановлен")
}
