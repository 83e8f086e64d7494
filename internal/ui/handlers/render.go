// Пакет handlers — обработчики страниц портала.
// render.go — общие функции рендеринга и доступа к сессии.
package handlers

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/session"
	"github.com/rmsb/condo-portal/internal/ui/middleware"
	"github.com/rmsb/condo-portal/internal/ui/pages"
)

// renderPage рендерит страницу в буфер и отправляет её с заданным статусом.
// Ошибка рендеринга отвечает 500 без частично записанного документа.
func renderPage(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, titleKey string, body templ.Component) {
	shell := pages.Shell{
		TitleKey:    titleKey,
		User:        currentUser(r),
		CurrentPath: r.URL.Path,
	}

	var buf bytes.Buffer
	if err := pages.Page(shell, body).Render(r.Context(), &buf); err != nil {
		logger.Error("Ошибка рендеринга страницы",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// currentUser возвращает пользователя сессии запроса (nil — не вошёл).
func currentUser(r *http.Request) *model.User {
	store := middleware.StoreFromContext(r.Context())
	if store == nil {
		return nil
	}
	return store.Snapshot().User
}

// requireStore возвращает Store запроса. Отсутствие Store означает
// ошибку сборки маршрутов: отвечаем 500.
func requireStore(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*session.Store, bool) {
	store := middleware.StoreFromContext(r.Context())
	if store == nil {
		logger.Error("Store сессии отсутствует в контексте",
			slog.String("path", r.URL.Path),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	return store, true
}

// redirect — переход после POST-формы.
func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}
