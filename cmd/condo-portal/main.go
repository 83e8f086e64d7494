// Точка входа Condo Portal — веб-портал управления кондоминиумами.
// Загружает конфигурацию, выбирает хранилище токенов (memory, postgres, redis),
// создаёт реестр сессий и клиент удалённого API, запускает мониторинг
// зависимостей, HTTP-сервер со страницами и graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/rmsb/condo-portal/internal/api/handlers"
	"github.com/rmsb/condo-portal/internal/apiclient"
	"github.com/rmsb/condo-portal/internal/config"
	"github.com/rmsb/condo-portal/internal/database"
	"github.com/rmsb/condo-portal/internal/server"
	"github.com/rmsb/condo-portal/internal/service"
	"github.com/rmsb/condo-portal/internal/session"
	"github.com/rmsb/condo-portal/internal/tokenstore"
	"github.com/rmsb/condo-portal/internal/ui/guard"
	uihandlers "github.com/rmsb/condo-portal/internal/ui/handlers"
	"github.com/rmsb/condo-portal/internal/ui/i18n"
	uimiddleware "github.com/rmsb/condo-portal/internal/ui/middleware"
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
	logger.Info("Condo Portal запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("token_store", cfg.TokenStore),
	)

	if os.Getenv("CP_DEPHEALTH_GROUP") == "" {
		logger.Warn("CP_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}
	if cfg.SessionSecret == "" {
		logger.Warn("CP_SESSION_SECRET не задан, сессии не сохраняются между рестартами")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Хранилище токенов
	tokens, pgDB, closeTokens, err := openTokenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeTokens()

	// 4. Реестр сессий и клиент API.
	// Manager — источник токена и обработчик инвалидации для клиента,
	// клиент — Authenticator для Store.
	manager := session.NewManager(tokens, cfg.SessionCacheSize, cfg.SessionIdleTTL, logger)
	client := apiclient.New(apiclient.Config{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		HealthPath: cfg.APIHealthPath,
	}, manager, manager, logger)
	manager.SetAuthenticator(client)

	codec, err := session.NewCookieCodec(cfg.SessionSecret, cfg.CookieSecure, cfg.SessionTTL)
	if err != nil {
		logger.Error("Ошибка инициализации cookie сессии", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Мониторинг зависимостей (topologymetrics)
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:     "condo-portal",
		Group:         cfg.DephealthGroup,
		APIURL:        cfg.APIBaseURL,
		APIHealthPath: cfg.APIHealthPath,
		DB:            pgDB,
		PostgresURL:   postgresURL(cfg),
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Error("Ошибка создания сервиса мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска мониторинга зависимостей", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. i18n
	bundle := i18n.Init(logger)
	if err := i18n.LoadFromEmbedFS(bundle, logger); err != nil {
		logger.Error("Ошибка загрузки переводов", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 7. Обработчики
	healthHandler := handlers.NewHealthHandler(tokens, client)
	sessions := uimiddleware.NewSession(codec, manager, logger)
	ui := &server.UIComponents{
		Session: sessions,
		Guard:   guard.New(logger),
		Auth:    uihandlers.NewAuthHandler(sessions, logger),
		Pages:   uihandlers.NewPagesHandler(client, logger),
		Profile: uihandlers.NewProfileHandler(client, logger),
		Proxy:   uihandlers.NewProxyHandler(client, logger),
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, healthHandler, ui)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 9. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	dephealthSvc.Stop()
	cancel()

	logger.Info("Condo Portal остановлен")
}

// openTokenStore создаёт хранилище токенов по CP_TOKEN_STORE.
// Для postgres возвращает также *sql.DB поверх пула (для dephealth).
// close освобождает подключения и останавливает фоновую очистку.
func openTokenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tokenstore.Store, *sql.DB, func(), error) {
	switch cfg.TokenStore {
	case config.TokenStorePostgres:
		logger.Info("Применение миграций БД...")
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, nil, nil, err
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		// Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
		pgDB := stdlib.OpenDBFromPool(pool)

		store := tokenstore.NewPostgres(pool, cfg.SessionTTL, cfg.TokenPurgeInterval, logger)
		store.Start(ctx)

		return store, pgDB, func() {
			store.Stop()
			_ = pgDB.Close()
			pool.Close()
		}, nil

	case config.TokenStoreRedis:
		client, err := tokenstore.ConnectRedis(ctx, tokenstore.RedisConfig{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Подключение к Redis установлено", slog.String("addr", cfg.RedisAddr))
		return tokenstore.NewRedis(client, cfg.SessionTTL), nil, func() { _ = client.Close() }, nil

	default:
		return tokenstore.NewMemory(cfg.SessionCacheSize, cfg.SessionTTL), nil, func() {}, nil
	}
}

// postgresURL — URL PostgreSQL для лейблов метрик (пустой вне postgres).
func postgresURL(cfg *config.Config) string {
	if cfg.TokenStore != config.TokenStorePostgres {
		return ""
	}
	return cfg.DatabaseURL()
}
