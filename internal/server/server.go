// Пакет server — HTTP-сервер Condo Portal с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rmsb/condo-portal/internal/api/handlers"
	"github.com/rmsb/condo-portal/internal/api/middleware"
	"github.com/rmsb/condo-portal/internal/config"
	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/domain/rbac"
	"github.com/rmsb/condo-portal/internal/ui/guard"
	uihandlers "github.com/rmsb/condo-portal/internal/ui/handlers"
	"github.com/rmsb/condo-portal/internal/ui/i18n"
	"github.com/rmsb/condo-portal/internal/ui/layout"
	uimiddleware "github.com/rmsb/condo-portal/internal/ui/middleware"
	"github.com/rmsb/condo-portal/internal/ui/static"
)

// UIComponents — обработчики и middleware страниц портала.
type UIComponents struct {
	Session *uimiddleware.Session
	Guard   *guard.Guard
	Auth    *uihandlers.AuthHandler
	Pages   *uihandlers.PagesHandler
	Profile *uihandlers.ProfileHandler
	Proxy   *uihandlers.ProxyHandler
}

// Server — HTTP-сервер Condo Portal.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными routes и middleware.
func New(cfg *config.Config, logger *slog.Logger, health *handlers.HealthHandler, ui *UIComponents) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(logger, health, ui),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты портала.
// Служебные endpoints и статика обслуживаются без сессии; каждая страница
// проходит i18n, Session middleware и Route Guard с требованием из guard.Routes.
func NewRouter(logger *slog.Logger, health *handlers.HealthHandler, ui *UIComponents) http.Handler {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)
	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(static.FileSystem())))

	router.Group(func(r chi.Router) {
		r.Use(i18n.Middleware())
		r.Use(ui.Session.Middleware())

		pr := &pageRoutes{router: r, guard: ui.Guard}

		pr.get("/", ui.Pages.HandleHome)
		pr.get("/about", ui.Pages.HandleAbout)
		pr.get("/unauthorized", ui.Pages.HandleUnauthorized)
		pr.get("/login", ui.Auth.HandleLoginPage)
		pr.post("/login", ui.Auth.HandleLogin)
		pr.get("/register", ui.Auth.HandleRegisterPage)
		pr.post("/register", ui.Auth.HandleRegister)
		pr.post("/logout", ui.Auth.HandleLogout)
		pr.post("/set-language", uihandlers.HandleSetLanguage)

		pr.get("/profile", ui.Profile.HandleProfilePage)
		pr.post("/profile", ui.Profile.HandleUpdateProfile)

		// Дашборды и разделы каждой роли — из её боковой навигации
		for _, role := range []model.UserType{model.UserTypeResident, model.UserTypeAdmin, model.UserTypeSuperAdmin} {
			home := rbac.Resolve(&model.User{Type: role}).HomeRoute
			pr.get(home, ui.Pages.HandleDashboard(role))
			for _, item := range layout.ForRole(role).Items {
				if item.Path != home {
					pr.get(item.Path, ui.Pages.HandleSection(item))
				}
			}
		}

		pr.any("/api/*", ui.Proxy.HandleAPI)

		// Вложенные пути защищённых префиксов без своей страницы:
		// сначала проверка роли, затем переход на главную
		for _, route := range guard.Routes {
			if route.Pattern != "/api/*" && isWildcard(route.Pattern) {
				pr.any(route.Pattern, ui.Pages.HandleNotFound)
			}
		}

		r.NotFound(ui.Pages.HandleNotFound)
		r.MethodNotAllowed(ui.Pages.HandleNotFound)
	})

	return router
}

// pageRoutes регистрирует страницы за Route Guard.
type pageRoutes struct {
	router chi.Router
	guard  *guard.Guard
}

func (p *pageRoutes) get(pattern string, h http.HandlerFunc) {
	p.router.With(p.require(pattern)).Get(pattern, h)
}

func (p *pageRoutes) post(pattern string, h http.HandlerFunc) {
	p.router.With(p.require(pattern)).Post(pattern, h)
}

func (p *pageRoutes) any(pattern string, h http.HandlerFunc) {
	p.router.With(p.require(pattern)).HandleFunc(pattern, h)
}

// require возвращает guard для шаблона; пути вне таблицы публичны.
func (p *pageRoutes) require(pattern string) func(http.Handler) http.Handler {
	req, ok := guard.RequirementFor(pattern)
	if !ok {
		req = guard.Public()
	}
	return p.guard.Require(req)
}

func isWildcard(pattern string) bool {
	return len(pattern) > 2 && pattern[len(pattern)-2:] == "/*"
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
