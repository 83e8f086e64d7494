// proxy.go — /api/* pass-through к удалённому API с токеном сессии.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/rmsb/condo-portal/internal/api/errors"
	"github.com/rmsb/condo-portal/internal/apiclient"
	"github.com/rmsb/condo-portal/internal/ui/guard"
)

// Forwarder передаёт запрос в удалённый API.
type Forwarder interface {
	Forward(ctx context.Context, method, path, rawQuery, contentType string, body io.Reader) (*http.Response, error)
}

// relayedHeaders — заголовки ответа API, передаваемые браузеру.
var relayedHeaders = []string{"Content-Type", "Content-Disposition", "Cache-Control", "ETag", "Last-Modified"}

// ProxyHandler — обработчик /api/*.
type ProxyHandler struct {
	client Forwarder
	logger *slog.Logger
}

// NewProxyHandler создаёт обработчик pass-through.
func NewProxyHandler(client Forwarder, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		client: client,
		logger: logger.With(slog.String("component", "ui.proxy")),
	}
}

// HandleAPI передаёт метод, query, тело и Content-Type запроса в API
// и возвращает браузеру статус и тело ответа как есть.
// Истёкшая сессия даёт 401 с HX-Redirect на страницу входа.
func (h *ProxyHandler) HandleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	if path == "" {
		path = "/"
	}

	resp, err := h.client.Forward(r.Context(), r.Method, path, r.URL.RawQuery, r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		if errors.Is(err, apiclient.ErrSessionInvalidated) {
			w.Header().Set("HX-Redirect", guard.LoginRoute)
			apierrors.Unauthorized(w, apiclient.MessageOf(err))
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		h.logger.Warn("Ошибка pass-through запроса",
			slog.String("method", r.Method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		apierrors.BackendUnavailable(w, apiclient.MessageOf(err))
		return
	}
	defer resp.Body.Close()

	for _, name := range relayedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Debug("Обрыв передачи ответа API",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
