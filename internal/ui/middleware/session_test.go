package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/session"
	"github.com/rmsb/condo-portal/internal/tokenstore"
)

// stubAuth подтверждает сохранённый токен пользователем user или ошибкой err.
type stubAuth struct {
	user *model.User
	err  error
}

func (a stubAuth) Login(context.Context, model.Credentials) (*model.AuthResult, error) {
	return &model.AuthResult{Token: "tok", User: a.user}, nil
}

func (stubAuth) Register(context.Context, model.RegistrationProfile) error { return nil }

func (a stubAuth) Profile(context.Context) (*model.User, error) { return a.user, a.err }

// brokenLoad — хранилище, которое не может прочитать токен.
type brokenLoad struct {
	tokenstore.Store
}

func (brokenLoad) Load(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

// brokenDelete — хранилище, которое не может удалить токен.
type brokenDelete struct {
	tokenstore.Store
}

func (brokenDelete) Delete(context.Context, string) error {
	return errors.New("db down")
}

type fixture struct {
	codec   *session.CookieCodec
	tokens  tokenstore.Store
	session *Session
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, auth session.Authenticator, tokens tokenstore.Store) *fixture {
	t.Helper()
	codec, err := session.NewCookieCodec("middleware-secret", false, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	manager := session.NewManager(tokens, 10, time.Hour, logger)
	manager.SetAuthenticator(auth)

	return &fixture{
		codec:   codec,
		tokens:  tokens,
		session: NewSession(codec, manager, logger),
		logs:    logs,
	}
}

// serve пропускает запрос через middleware и возвращает ответ и Store из контекста.
func (f *fixture) serve(t *testing.T, cookie *http.Cookie) (*httptest.ResponseRecorder, *session.Store) {
	t.Helper()
	var store *session.Store
	h := f.session.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store = StoreFromContext(r.Context())
		if got := session.SessionIDFromContext(r.Context()); store != nil && got != store.ID() {
			t.Errorf("идентификатор в контексте = %q, у Store = %q", got, store.ID())
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if store == nil {
		t.Fatal("Store не передан обработчику")
	}
	return rec, store
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	return nil
}

func TestSession_CookieHandling(t *testing.T) {
	f := newFixture(t, stubAuth{}, tokenstore.NewMemory(10, time.Hour))

	valid, err := f.codec.Encode("sid-known")
	if err != nil {
		t.Fatal(err)
	}
	other, _ := session.NewCookieCodec("other-secret", false, time.Hour)
	foreign, _ := other.Encode("sid-foreign")

	tests := []struct {
		name      string
		cookie    *http.Cookie
		wantID    string
		wantIssue bool
	}{
		{"без cookie", nil, "", true},
		{"действующий cookie", &http.Cookie{Name: session.CookieName, Value: valid}, "sid-known", false},
		{"повреждённый cookie", &http.Cookie{Name: session.CookieName, Value: "%%%"}, "", true},
		{"чужой ключ", &http.Cookie{Name: session.CookieName, Value: foreign}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, store := f.serve(t, tt.cookie)

			issued := sessionCookie(t, rec)
			if tt.wantIssue != (issued != nil) {
				t.Fatalf("выдан cookie = %v, ожидалось %v", issued != nil, tt.wantIssue)
			}
			if tt.wantID != "" && store.ID() != tt.wantID {
				t.Errorf("Store.ID() = %q, ожидался %q", store.ID(), tt.wantID)
			}
			if issued != nil {
				id, err := f.codec.Decode(issued.Value)
				if err != nil || id != store.ID() {
					t.Errorf("новый cookie = %q (%v), Store.ID() = %q", id, err, store.ID())
				}
				if id == "sid-foreign" {
					t.Error("принят идентификатор из чужого cookie")
				}
			}
		})
	}
}

func TestSession_Restore(t *testing.T) {
	resident := &model.User{ID: "u1", Type: model.UserTypeResident, FullName: "Abebe"}

	tests := []struct {
		name     string
		auth     stubAuth
		broken   bool
		wantUser bool
		wantLog  string
	}{
		{"токен подтверждён", stubAuth{user: resident}, false, true, ""},
		{"API недоступен", stubAuth{err: errors.New("dial tcp: refused")}, false, false, "Не удалось восстановить сессию"},
		{"хранилище недоступно", stubAuth{user: resident}, true, false, "Не удалось восстановить сессию"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tokens tokenstore.Store = tokenstore.NewMemory(10, time.Hour)
			if err := tokens.Save(context.Background(), "sid-saved", "opaque-token"); err != nil {
				t.Fatal(err)
			}
			if tt.broken {
				tokens = brokenLoad{tokens}
			}
			f := newFixture(t, tt.auth, tokens)

			value, _ := f.codec.Encode("sid-saved")
			_, store := f.serve(t, &http.Cookie{Name: session.CookieName, Value: value})

			if got := store.Snapshot().IsAuthenticated(); got != tt.wantUser {
				t.Errorf("IsAuthenticated() = %v, ожидалось %v", got, tt.wantUser)
			}
			if tt.wantLog != "" && !strings.Contains(f.logs.String(), tt.wantLog) {
				t.Errorf("нет записи %q в логе: %s", tt.wantLog, f.logs.String())
			}
		})
	}
}

// TestSession_Rotate: после выхода браузер получает новый идентификатор,
// старый токен удаляется; сбой удаления попадает в лог.
func TestSession_Rotate(t *testing.T) {
	tests := []struct {
		name     string
		broken   bool
		wantGone bool
		wantLog  string
	}{
		{"токен удалён", false, true, ""},
		{"удаление не удалось", true, false, "Токен завершённой сессии остался в хранилище"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memory := tokenstore.NewMemory(10, time.Hour)
			_ = memory.Save(context.Background(), "sid-old", "tok")
			var tokens tokenstore.Store = memory
			if tt.broken {
				tokens = brokenDelete{memory}
			}
			f := newFixture(t, stubAuth{}, tokens)

			req := httptest.NewRequest(http.MethodPost, "/logout", nil)
			req = req.WithContext(session.WithSessionID(req.Context(), "sid-old"))
			rec := httptest.NewRecorder()
			f.session.Rotate(rec, req)

			issued := sessionCookie(t, rec)
			if issued == nil {
				t.Fatal("новый cookie не выдан")
			}
			if id, err := f.codec.Decode(issued.Value); err != nil || id == "sid-old" || id == "" {
				t.Errorf("новый идентификатор = %q (%v)", id, err)
			}

			_, err := memory.Load(context.Background(), "sid-old")
			if gone := errors.Is(err, tokenstore.ErrNotFound); gone != tt.wantGone {
				t.Errorf("токен удалён = %v, ожидалось %v", gone, tt.wantGone)
			}
			if tt.wantLog != "" && !strings.Contains(f.logs.String(), tt.wantLog) {
				t.Errorf("нет записи %q в логе: %s", tt.wantLog, f.logs.String())
			}
		})
	}
}
