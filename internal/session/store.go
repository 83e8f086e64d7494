// Пакет session — состояние аутентификации браузерной сессии.
//
// Store — единственный источник истины для одной сессии: токен, пользователь,
// флаги загрузки и ошибки. Изменяется только своими операциями
// (Login, Register, Logout, UpdateUser, ClearError, Restore).
//
// Сетевые вызовы выполняются без удержания mutex. Результат асинхронного
// вызова применяется, только если счётчик поколений не изменился с начала
// вызова. Поколение увеличивают Logout и инвалидация сессии (401 от API),
// поэтому ответ, пришедший после выхода, не восстанавливает сессию.
// Параллельные Login не сериализуются: применяется последний завершившийся.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rmsb/condo-portal/internal/apiclient"
	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/tokenstore"
)

// ErrStale — результат вызова отброшен: сессия изменилась (выход или
// инвалидация) пока запрос был в полёте.
var ErrStale = errors.New("сессия изменилась во время запроса")

// Authenticator — вызовы удалённого API, нужные Store.
// Реализуется *apiclient.Client.
type Authenticator interface {
	Login(ctx context.Context, creds model.Credentials) (*model.AuthResult, error)
	Register(ctx context.Context, profile model.RegistrationProfile) error
	Profile(ctx context.Context) (*model.User, error)
}

// State — снимок состояния сессии.
// User != nil влечёт Token != "". Token без User — ожидание подтверждения
// при восстановлении.
type State struct {
	Token     string
	User      *model.User
	IsLoading bool
	Error     string
}

// IsAuthenticated — пользователь подтверждён.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// IsPending — токен есть, пользователь ещё не подтверждён.
func (s State) IsPending() bool {
	return s.Token != "" && s.User == nil
}

// Store — состояние одной браузерной сессии.
type Store struct {
	id     string
	auth   Authenticator
	tokens tokenstore.Store
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	token    string
	user     *model.User
	errMsg   string
	inflight int
	gen      uint64

	// restoreDone закрывается по завершении восстановления;
	// nil — восстановление ещё не запускалось.
	restoreDone chan struct{}
}

// NewStore создаёт пустую сессию с идентификатором id.
func NewStore(id string, auth Authenticator, tokens tokenstore.Store, logger *slog.Logger) *Store {
	return &Store{
		id:     id,
		auth:   auth,
		tokens: tokens,
		logger: logger.With(slog.String("component", "session")),
		now:    time.Now,
	}
}

// ID возвращает идентификатор браузерной сессии.
func (s *Store) ID() string {
	return s.id
}

// Snapshot возвращает копию текущего состояния.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Token:     s.token,
		User:      s.user.Clone(),
		IsLoading: s.inflight > 0,
		Error:     s.errMsg,
	}
}

// begin отмечает начало сетевого вызова и возвращает текущее поколение.
func (s *Store) begin(clearError bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	if clearError {
		s.errMsg = ""
	}
	return s.gen
}

// end снимает отметку сетевого вызова. Вызывается под mutex.
func (s *Store) end() {
	if s.inflight > 0 {
		s.inflight--
	}
}

// Login выполняет вход. При успехе токен сохраняется в долговременное
// хранилище, затем Token и User выставляются вместе, Error очищается.
// При ошибке Error получает сообщение сервера, Token и User не меняются.
func (s *Store) Login(ctx context.Context, creds model.Credentials) error {
	gen := s.begin(true)

	result, err := s.auth.Login(WithSessionID(ctx, s.id), creds)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()

	// Ошибка не восстанавливает сессию, поэтому применяется всегда
	if err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		s.errMsg = apiclient.MessageOf(err)
		return err
	}

	if s.gen != gen {
		loginsTotal.WithLabelValues("stale").Inc()
		s.logger.Info("Результат входа отброшен: сессия изменилась",
			slog.String("session_id", s.id),
		)
		return ErrStale
	}

	// Токен сохраняется под mutex: Logout не может вклиниться между
	// записью в хранилище и обновлением состояния.
	if err := s.tokens.Save(ctx, s.id, result.Token); err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		s.errMsg = "Could not save session, please try again"
		s.logger.Error("Не удалось сохранить токен сессии",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("сохранение токена: %w", err)
	}

	s.token = result.Token
	s.user = result.User.Clone()
	s.errMsg = ""
	loginsTotal.WithLabelValues("success").Inc()

	s.logger.Info("Пользователь вошёл",
		slog.String("session_id", s.id),
		slog.String("user_id", s.user.ID),
		slog.String("type", s.user.Type.String()),
	)
	return nil
}

// Register создаёт аккаунт. Token и User не меняются: после регистрации
// пользователь входит отдельно.
func (s *Store) Register(ctx context.Context, profile model.RegistrationProfile) error {
	s.begin(true)

	err := s.auth.Register(WithSessionID(ctx, s.id), profile)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()

	if err != nil {
		s.errMsg = apiclient.MessageOf(err)
	}
	return err
}

// Logout очищает Token и User и удаляет токен из долговременного хранилища.
// Идемпотентен. Состояние в памяти очищается всегда; ошибка сообщает
// только о сбое удаления из хранилища.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.token = ""
	s.user = nil
	s.errMsg = ""

	if err := s.tokens.Delete(ctx, s.id); err != nil {
		s.logger.Error("Не удалось удалить токен сессии",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("удаление токена: %w", err)
	}
	return nil
}

// invalidate — реакция на 401 от API: то же, что Logout.
func (s *Store) invalidate(ctx context.Context) {
	if err := s.Logout(ctx); err != nil {
		s.logger.Warn("Инвалидация сессии: токен не удалён из хранилища",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()),
		)
	}
}

// UpdateUser сливает изменения профиля в User, Token не меняется.
// Без аутентификации — no-op, возвращает false.
func (s *Store) UpdateUser(update model.ProfileUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return false
	}
	s.user = update.Apply(s.user)
	return true
}

// ClearError сбрасывает Error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Restore восстанавливает сессию по сохранённому токену.
// Выполняется один раз на Store; параллельные вызовы ждут первого.
// Токен с истёкшим exp удаляется без обращения к API. Иначе сессия
// переходит в ожидание, а GET /auth/profile подтверждает пользователя.
// Сетевой сбой оставляет сессию в ожидании; следующий Restore повторит попытку.
func (s *Store) Restore(ctx context.Context) error {
	s.mu.Lock()
	if s.restoreDone != nil {
		done := s.restoreDone
		s.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	done := make(chan struct{})
	s.restoreDone = done
	gen := s.gen
	s.mu.Unlock()
	defer close(done)

	token, err := s.tokens.Load(ctx, s.id)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.retryRestoreLater()
		return fmt.Errorf("чтение токена сессии: %w", err)
	}

	if tokenExpired(token, s.now()) {
		s.logger.Info("Сохранённый токен истёк",
			slog.String("session_id", s.id),
		)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return nil
		}
		if err := s.tokens.Delete(ctx, s.id); err != nil {
			return fmt.Errorf("удаление истёкшего токена: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	if s.gen != gen || s.user != nil || (s.token != "" && s.token != token) {
		// Пока читали хранилище, сессия вышла или вошла заново
		s.mu.Unlock()
		return nil
	}
	s.token = token
	s.inflight++
	s.mu.Unlock()

	user, err := s.auth.Profile(WithSessionID(ctx, s.id))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()

	if s.gen != gen || s.token != token {
		return nil
	}
	if err != nil {
		s.errMsg = apiclient.MessageOf(err)
		s.restoreDone = nil
		return fmt.Errorf("подтверждение пользователя: %w", err)
	}
	if s.user == nil {
		s.user = user
	}
	return nil
}

// retryRestoreLater разрешает повторный Restore.
func (s *Store) retryRestoreLater() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreDone = nil
}

// tokenExpired проверяет exp токена без проверки подписи.
// Токены, не являющиеся JWT, и JWT без exp считаются действующими:
// окончательное решение принимает API.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(now)
}
