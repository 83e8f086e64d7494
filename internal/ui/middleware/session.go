// Пакет middleware — HTTP middleware страниц портала.
// session.go — привязка запроса к браузерной сессии по cookie
// и восстановление сессии по сохранённому токену.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rmsb/condo-portal/internal/session"
)

// contextKey — тип для ключей контекста UI.
type contextKey string

const (
	// ContextKeySessionStore — Store текущей браузерной сессии.
	ContextKeySessionStore contextKey = "session_store"
)

// Session — middleware браузерной сессии.
// Извлекает идентификатор сессии из зашифрованного cookie (или выдаёт новый),
// находит Store в реестре, восстанавливает его и кладёт в контекст.
type Session struct {
	codec   *session.CookieCodec
	manager *session.Manager
	logger  *slog.Logger
}

// NewSession создаёт middleware сессии.
func NewSession(codec *session.CookieCodec, manager *session.Manager, logger *slog.Logger) *Session {
	return &Session{
		codec:   codec,
		manager: manager,
		logger:  logger.With(slog.String("component", "session_middleware")),
	}
}

// Middleware возвращает HTTP middleware.
func (s *Session) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := s.codec.FromRequest(r)
			if err != nil {
				// Повреждённый или истёкший cookie — начинаем новую сессию
				s.logger.Debug("Ошибка чтения cookie сессии",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				id = ""
			}

			if id == "" {
				id = session.NewSessionID()
				if err := s.codec.SetCookie(w, id); err != nil {
					s.logger.Error("Ошибка установки cookie сессии",
						slog.String("error", err.Error()),
					)
				}
			}

			ctx := session.WithSessionID(r.Context(), id)
			store := s.manager.Get(id)

			if err := store.Restore(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Не удалось восстановить сессию",
					slog.String("session_id", id),
					slog.String("error", err.Error()),
				)
			}

			ctx = context.WithValue(ctx, ContextKeySessionStore, store)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Rotate выдаёт браузеру новый идентификатор сессии и выводит старый
// из употребления. Вызывается после выхода: если токен не удалось удалить
// из хранилища, браузер всё равно не вернётся к старой сессии.
func (s *Session) Rotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oldID := session.SessionIDFromContext(ctx)

	if err := s.codec.SetCookie(w, session.NewSessionID()); err != nil {
		s.logger.Error("Ошибка установки cookie сессии",
			slog.String("error", err.Error()),
		)
		s.codec.ClearCookie(w)
	}

	if err := s.manager.Retire(ctx, oldID); err != nil {
		s.logger.Error("Токен завершённой сессии остался в хранилище",
			slog.String("session_id", oldID),
			slog.String("error", err.Error()),
		)
	}
}

// StoreFromContext извлекает Store из контекста запроса.
// nil — запрос не прошёл через Session middleware.
func StoreFromContext(ctx context.Context) *session.Store {
	store, ok := ctx.Value(ContextKeySessionStore).(*session.Store)
	if !ok {
		return nil
	}
	return store
}

// WithStore кладёт Store в контекст (для тестов обработчиков).
func WithStore(ctx context.Context, store *session.Store) context.Context {
	return context.WithValue(session.WithSessionID(ctx, store.ID()), ContextKeySessionStore, store)
}
