package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rmsb/condo-portal/internal/domain/model"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupMockAPI создаёт mock HTTP-сервер удалённого API.
func setupMockAPI(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// fixedToken — TokenSource с фиксированным токеном.
type fixedToken string

func (f fixedToken) Token(context.Context) (string, error) { return string(f), nil }

// failingToken — TokenSource, возвращающий ошибку.
type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) {
	return "", fmt.Errorf("хранилище недоступно")
}

// invalidationRecorder считает вызовы SessionInvalidated.
type invalidationRecorder struct {
	calls atomic.Int32
}

func (r *invalidationRecorder) SessionInvalidated(context.Context) { r.calls.Add(1) }

func newTestClient(baseURL string, tokens TokenSource, onInvalid InvalidationHandler) *Client {
	return New(Config{BaseURL: baseURL + "/"}, tokens, onInvalid, testLogger())
}

// TestClient_AttachesBearer проверяет заголовки запроса с токеном.
func TestClient_AttachesBearer(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, ожидалось %q", got, "Bearer tok-1")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})

	client := newTestClient(server.URL, fixedToken("tok-1"), nil)

	var out map[string]bool
	if err := client.Get(context.Background(), "/complaints", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !out["ok"] {
		t.Errorf("ответ не декодирован: %v", out)
	}
}

// TestClient_NoTokenNoHeader проверяет запрос без токена.
func TestClient_NoTokenNoHeader(t *testing.T) {
	tests := []struct {
		name   string
		tokens TokenSource
	}{
		{"nil источник", nil},
		{"пустой токен", fixedToken("")},
		{"ошибка источника", failingToken{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("Authorization"); got != "" {
					t.Errorf("Authorization = %q, ожидался пустой", got)
				}
				w.WriteHeader(http.StatusNoContent)
			})

			client := newTestClient(server.URL, tt.tokens, nil)
			if err := client.Get(context.Background(), "/announcements", nil); err != nil {
				t.Fatalf("Get: %v", err)
			}
		})
	}
}

// TestClient_UnauthorizedInvalidates проверяет глобальную реакцию на 401.
func TestClient_UnauthorizedInvalidates(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Token expired"}`)
	})

	rec := &invalidationRecorder{}
	client := newTestClient(server.URL, fixedToken("stale"), rec)

	err := client.Get(context.Background(), "/complaints", nil)
	if !errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("ожидалась ErrSessionInvalidated, получено %v", err)
	}
	if StatusOf(err) != http.StatusUnauthorized {
		t.Errorf("StatusOf = %d", StatusOf(err))
	}
	if MessageOf(err) != "Token expired" {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
	if rec.calls.Load() != 1 {
		t.Errorf("SessionInvalidated вызван %d раз, ожидался 1", rec.calls.Load())
	}
}

// TestClient_RegisterUnauthorizedKeepsSession проверяет, что 401 на регистрацию
// не инвалидирует сессию и возвращается как обычная ошибка API.
func TestClient_RegisterUnauthorizedKeepsSession(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/register" {
			t.Errorf("неожиданный путь %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, регистрация идёт без токена", got)
		}
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Registration closed"}`)
	})

	rec := &invalidationRecorder{}
	client := newTestClient(server.URL, fixedToken("tok"), rec)

	err := client.Register(context.Background(), model.RegistrationProfile{FullName: "Abebe"})
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if errors.Is(err, ErrSessionInvalidated) {
		t.Error("регистрация не должна инвалидировать сессию")
	}
	if MessageOf(err) != "Registration closed" {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
	if rec.calls.Load() != 0 {
		t.Errorf("SessionInvalidated вызван %d раз", rec.calls.Load())
	}
}

// TestClient_LoginWithActiveSession проверяет, что неверный пароль
// при действующей сессии не инвалидирует её: вход идёт без токена.
func TestClient_LoginWithActiveSession(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, вход идёт без токена", got)
		}
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Invalid credentials"}`)
	})

	rec := &invalidationRecorder{}
	client := newTestClient(server.URL, fixedToken("tok-active"), rec)

	_, err := client.Login(context.Background(), model.Credentials{Phone: "0911", Password: "wrong", UserType: "resident"})
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if errors.Is(err, ErrSessionInvalidated) {
		t.Error("неверный пароль не должен инвалидировать сессию")
	}
	if MessageOf(err) != "Invalid credentials" {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
	if rec.calls.Load() != 0 {
		t.Errorf("SessionInvalidated вызван %d раз", rec.calls.Load())
	}
}

// TestClient_UnauthorizedWithoutToken проверяет 401 на запрос без токена
// (например, неверный пароль при входе).
func TestClient_UnauthorizedWithoutToken(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Invalid credentials"}`)
	})

	rec := &invalidationRecorder{}
	client := newTestClient(server.URL, fixedToken(""), rec)

	_, err := client.Login(context.Background(), model.Credentials{Phone: "0911", Password: "x", UserType: "resident"})
	if errors.Is(err, ErrSessionInvalidated) {
		t.Fatal("401 без токена не должен инвалидировать сессию")
	}
	if MessageOf(err) != "Invalid credentials" {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
	if rec.calls.Load() != 0 {
		t.Errorf("SessionInvalidated вызван %d раз", rec.calls.Load())
	}
}

// TestClient_Login проверяет тело запроса и разбор ответа входа.
func TestClient_Login(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/login" {
			t.Errorf("запрос %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("декодирование тела: %v", err)
		}
		if body["phone"] != "0911000000" || body["userType"] != "admin" {
			t.Errorf("тело = %v", body)
		}
		fmt.Fprint(w, `{"token":"t-1","user":{"_id":"u1","type":"admin","role":"SUPER_ADMIN","name":"Sara"}}`)
	})

	client := newTestClient(server.URL, nil, nil)
	res, err := client.Login(context.Background(), model.Credentials{
		Phone: "0911000000", Password: "secret", UserType: "admin",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token != "t-1" {
		t.Errorf("Token = %q", res.Token)
	}
	if res.User.ID != "u1" || res.User.Type != model.UserTypeSuperAdmin || res.User.FullName != "Sara" {
		t.Errorf("User = %+v", res.User)
	}
}

// TestClient_LoginIncompleteResponse проверяет отказ от ответа без пользователя.
func TestClient_LoginIncompleteResponse(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token":"t-1"}`)
	})

	client := newTestClient(server.URL, nil, nil)
	if _, err := client.Login(context.Background(), model.Credentials{}); err == nil {
		t.Fatal("ожидалась ошибка для ответа без user")
	}
}

// TestClient_Profile проверяет обе формы ответа профиля.
func TestClient_Profile(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"голый пользователь", `{"id":"u7","type":"resident","fullName":"Abebe","block":"B"}`},
		{"конверт user", `{"user":{"id":"u7","type":"resident","fullName":"Abebe","block":"B"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/auth/profile" {
					t.Errorf("путь %s", r.URL.Path)
				}
				fmt.Fprint(w, tt.body)
			})

			client := newTestClient(server.URL, fixedToken("t"), nil)
			user, err := client.Profile(context.Background())
			if err != nil {
				t.Fatalf("Profile: %v", err)
			}
			if user.ID != "u7" || user.FullName != "Abebe" {
				t.Errorf("User = %+v", user)
			}
			if user.Attribute("block") != "B" {
				t.Errorf("block = %v", user.Attribute("block"))
			}
		})
	}
}

// TestClient_Dashboard проверяет выбор пути сводки по роли.
func TestClient_Dashboard(t *testing.T) {
	tests := []struct {
		role model.UserType
		path string
	}{
		{model.UserTypeResident, "/dashboard/resident"},
		{model.UserTypeAdmin, "/dashboard/admin"},
		{model.UserTypeSuperAdmin, "/dashboard/super"},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.path {
					t.Errorf("путь %s, ожидался %s", r.URL.Path, tt.path)
				}
				fmt.Fprint(w, `{"openComplaints":3}`)
			})

			client := newTestClient(server.URL, fixedToken("t"), nil)
			summary, err := client.Dashboard(context.Background(), tt.role)
			if err != nil {
				t.Fatalf("Dashboard: %v", err)
			}
			if summary["openComplaints"] != float64(3) {
				t.Errorf("summary = %v", summary)
			}
		})
	}
}

// TestClient_APIError проверяет разбор ошибок API.
func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message", http.StatusBadRequest, `{"message":"Phone already used"}`, "Phone already used"},
		{"error строка", http.StatusConflict, `{"error":"Duplicate"}`, "Duplicate"},
		{"error объект", http.StatusUnprocessableEntity, `{"error":{"code":"X","message":"Bad field"}}`, "Bad field"},
		{"не JSON", http.StatusInternalServerError, `oops`, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			client := newTestClient(server.URL, nil, nil)
			err := client.Post(context.Background(), "/complaints", map[string]string{"title": "x"}, nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("ожидалась *APIError, получено %T: %v", err, err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d", apiErr.StatusCode)
			}
			if got := MessageOf(err); got != tt.wantMsg {
				t.Errorf("MessageOf = %q, ожидалось %q", got, tt.wantMsg)
			}
		})
	}
}

// TestClient_NetworkError проверяет сообщение при недоступном API.
func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := newTestClient(url, nil, nil)
	err := client.Get(context.Background(), "/complaints", nil)
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if MessageOf(err) != msgNetworkError {
		t.Errorf("MessageOf = %q", MessageOf(err))
	}
}

// TestClient_Forward проверяет pass-through запроса.
func TestClient_Forward(t *testing.T) {
	server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/complaints/42" {
			t.Errorf("запрос %s %s", r.Method, r.URL.Path)
		}
		if r.URL.RawQuery != "notify=1" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer t" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"status":"closed"}` {
			t.Errorf("тело = %s", body)
		}
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprint(w, `{"id":42}`)
	})

	client := newTestClient(server.URL, fixedToken("t"), nil)
	resp, err := client.Forward(context.Background(), http.MethodPut, "/complaints/42", "notify=1",
		"application/json", strings.NewReader(`{"status":"closed"}`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

// TestClient_CheckReady проверяет readiness-проверку API.
func TestClient_CheckReady(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"ok", http.StatusOK, "ok"},
		{"404 считается доступным", http.StatusNotFound, "ok"},
		{"503", http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockAPI(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("путь %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
			})

			client := newTestClient(server.URL, nil, nil)
			status, _ := client.CheckReady()
			if status != tt.want {
				t.Errorf("CheckReady = %q, ожидалось %q", status, tt.want)
			}
		})
	}
}
