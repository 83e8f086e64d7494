// pages.go — обработчики публичных страниц, дашбордов и разделов.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rmsb/condo-portal/internal/apiclient"
	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/domain/rbac"
	"github.com/rmsb/condo-portal/internal/ui/guard"
	"github.com/rmsb/condo-portal/internal/ui/layout"
	"github.com/rmsb/condo-portal/internal/ui/pages"
)

// DashboardClient — источник сводки дашборда роли.
type DashboardClient interface {
	Dashboard(ctx context.Context, role model.UserType) (map[string]any, error)
}

// PagesHandler — обработчик страниц портала.
type PagesHandler struct {
	client DashboardClient
	logger *slog.Logger
}

// NewPagesHandler создаёт обработчик страниц.
func NewPagesHandler(client DashboardClient, logger *slog.Logger) *PagesHandler {
	return &PagesHandler{
		client: client,
		logger: logger.With(slog.String("component", "ui.pages")),
	}
}

// HandleHome — GET /.
func (h *PagesHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.logger, http.StatusOK, "home.title", pages.Home())
}

// HandleAbout — GET /about.
func (h *PagesHandler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, h.logger, http.StatusOK, "about.title", pages.About())
}

// HandleUnauthorized — GET /unauthorized. Ссылка ведёт на домашнюю
// страницу роли текущего пользователя.
func (h *PagesHandler) HandleUnauthorized(w http.ResponseWriter, r *http.Request) {
	home := rbac.Resolve(currentUser(r)).HomeRoute
	renderPage(w, r, h.logger, http.StatusForbidden, "unauthorized.title", pages.Unauthorized(home))
}

// HandleNotFound — неизвестные пути ведут на главную.
func (h *PagesHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

// HandleDashboard возвращает обработчик дашборда вида kind
// (/dashboard, /admin-dashboard, /super-admin-dashboard).
// Ошибка загрузки сводки показывается внутри страницы.
func (h *PagesHandler) HandleDashboard(kind model.UserType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		data := pages.DashboardData{
			User:        user,
			DisplayRole: rbac.Resolve(user).DisplayRole,
		}

		summary, err := h.client.Dashboard(r.Context(), kind)
		switch {
		case errors.Is(err, apiclient.ErrSessionInvalidated):
			http.Redirect(w, r, guard.LoginRoute, http.StatusFound)
			return
		case err != nil:
			h.logger.Warn("Не удалось загрузить сводку дашборда",
				slog.String("kind", kind.String()),
				slog.String("error", err.Error()),
			)
			data.Error = apiclient.MessageOf(err)
		default:
			data.Summary = summary
		}

		renderPage(w, r, h.logger, http.StatusOK, "nav.dashboard", pages.Dashboard(data))
	}
}

// HandleSection возвращает обработчик раздела из боковой навигации.
// Раздел загружает свои данные через /api pass-through.
func (h *PagesHandler) HandleSection(item layout.NavItem) http.HandlerFunc {
	data := pages.SectionData{
		TitleKey: item.LabelKey,
		APIPath:  "/api" + item.Path,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, r, h.logger, http.StatusOK, item.LabelKey, pages.Section(data))
	}
}
