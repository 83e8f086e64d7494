package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rmsb/condo-portal/internal/tokenstore"
)

// Prometheus метрики сессий.
var (
	// loginsTotal — попытки входа по результату (success, failure, stale).
	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cp_session_logins_total",
			Help: "Количество попыток входа по результату",
		},
		[]string{"result"},
	)

	// invalidationsTotal — сессии, сброшенные по 401 от API.
	invalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cp_session_invalidations_total",
		Help: "Количество сессий, инвалидированных ответом 401",
	})

	// retireFailuresTotal — выходы, после которых токен остался в хранилище.
	retireFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cp_session_retire_failures_total",
		Help: "Количество выходов, при которых токен не удалён из хранилища",
	})
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// WithSessionID возвращает контекст с идентификатором браузерной сессии.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext извлекает идентификатор сессии ("" — нет).
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey).(string)
	return id
}

// Manager — реестр Store по идентификатору браузерной сессии.
// Реализует apiclient.TokenSource и apiclient.InvalidationHandler.
// Store живёт в памяти ограниченное время (idleTTL), после вытеснения
// создаётся заново и восстанавливается по сохранённому токену.
type Manager struct {
	tokens tokenstore.Store
	logger *slog.Logger

	mu       sync.Mutex
	auth     Authenticator
	registry *expirable.LRU[string, *Store]
}

// NewManager создаёт реестр на size сессий с временем жизни idleTTL.
func NewManager(tokens tokenstore.Store, size int, idleTTL time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		tokens:   tokens,
		logger:   logger.With(slog.String("component", "session_manager")),
		registry: expirable.NewLRU[string, *Store](size, nil, idleTTL),
	}
}

// SetAuthenticator устанавливает клиент API для создаваемых Store.
// Вызывается один раз при старте: клиент API зависит от Manager
// как от источника токенов.
func (m *Manager) SetAuthenticator(auth Authenticator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth = auth
}

// NewSessionID генерирует идентификатор новой браузерной сессии.
func NewSessionID() string {
	return uuid.NewString()
}

// Get возвращает Store сессии id, создавая пустой при отсутствии.
func (m *Manager) Get(id string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.registry.Get(id); ok {
		return store
	}
	store := NewStore(id, m.auth, m.tokens, m.logger)
	m.registry.Add(id, store)
	return store
}

// Len возвращает количество Store в памяти.
func (m *Manager) Len() int {
	return m.registry.Len()
}

// Token возвращает сохранённый токен сессии из контекста.
// Нет сессии или токена — пустая строка без ошибки.
func (m *Manager) Token(ctx context.Context) (string, error) {
	id := SessionIDFromContext(ctx)
	if id == "" {
		return "", nil
	}
	token, err := m.tokens.Load(ctx, id)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// Retire выводит идентификатор сессии из употребления после выхода:
// браузер получил новый идентификатор, старый больше не должен восстанавливаться.
// Повторяет удаление сохранённого токена; неудача возвращается вызывающему.
// Store остаётся в реестре до вытеснения: пока он в памяти, повторное
// восстановление по старому cookie не выполняется.
func (m *Manager) Retire(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.tokens.Delete(ctx, id); err != nil {
		retireFailuresTotal.Inc()
		return fmt.Errorf("удаление токена сессии %s: %w", id, err)
	}
	return nil
}

// SessionInvalidated очищает сессию из контекста после 401 от API:
// удаляет сохранённый токен и сбрасывает состояние Store.
func (m *Manager) SessionInvalidated(ctx context.Context) {
	id := SessionIDFromContext(ctx)
	if id == "" {
		return
	}
	invalidationsTotal.Inc()

	if store, ok := m.registry.Peek(id); ok {
		store.invalidate(ctx)
	} else if err := m.tokens.Delete(ctx, id); err != nil {
		m.logger.Warn("Инвалидация сессии: токен не удалён из хранилища",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}

	m.logger.Info("Сессия инвалидирована",
		slog.String("session_id", id),
	)
}
