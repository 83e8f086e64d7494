package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rmsb/condo-portal/internal/api/handlers"
	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/session"
	"github.com/rmsb/condo-portal/internal/tokenstore"
	"github.com/rmsb/condo-portal/internal/ui/guard"
	uihandlers "github.com/rmsb/condo-portal/internal/ui/handlers"
	uimiddleware "github.com/rmsb/condo-portal/internal/ui/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// phoneAuth — вход по телефону: тип пользователя задаётся таблицей.
type phoneAuth map[string]model.UserType

func (a phoneAuth) Login(_ context.Context, creds model.Credentials) (*model.AuthResult, error) {
	return &model.AuthResult{
		Token: "tok-" + creds.Phone,
		User:  &model.User{ID: creds.Phone, Type: a[creds.Phone], FullName: "Test User", Phone: creds.Phone},
	}, nil
}

func (phoneAuth) Register(context.Context, model.RegistrationProfile) error { return nil }

func (phoneAuth) Profile(context.Context) (*model.User, error) { return nil, nil }

// stubAPI — Dashboard, UpdateProfile и Forward без сети.
type stubAPI struct{}

func (stubAPI) Dashboard(context.Context, model.UserType) (map[string]any, error) {
	return map[string]any{"residents": float64(12)}, nil
}

func (stubAPI) UpdateProfile(context.Context, model.ProfileUpdate) (*model.User, error) {
	return nil, nil
}

func (stubAPI) Forward(_ context.Context, _, path, _, _ string, _ io.Reader) (*http.Response, error) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	_, _ = rec.WriteString(`{"path":"` + path + `"}`)
	return rec.Result(), nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	codec, err := session.NewCookieCodec("test-secret", false, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return newTestServerWith(t, testPhones, tokenstore.NewMemory(100, time.Hour), codec)
}

var testPhones = phoneAuth{
	"0911000001": model.UserTypeResident,
	"0911000002": model.UserTypeAdmin,
	"0911000003": model.UserTypeSuperAdmin,
}

// newTestServerWith собирает сервер с пустым реестром сессий поверх
// заданного хранилища токенов. Два сервера с общими tokens и codec
// ведут себя как один процесс до и после рестарта.
func newTestServerWith(t *testing.T, auth session.Authenticator, tokens tokenstore.Store, codec *session.CookieCodec) *httptest.Server {
	t.Helper()
	logger := testLogger()

	manager := session.NewManager(tokens, 100, time.Hour, logger)
	manager.SetAuthenticator(auth)

	api := stubAPI{}
	sessions := uimiddleware.NewSession(codec, manager, logger)
	ui := &UIComponents{
		Session: sessions,
		Guard:   guard.New(logger),
		Auth:    uihandlers.NewAuthHandler(sessions, logger),
		Pages:   uihandlers.NewPagesHandler(api, logger),
		Profile: uihandlers.NewProfileHandler(api, logger),
		Proxy:   uihandlers.NewProxyHandler(api, logger),
	}

	srv := httptest.NewServer(NewRouter(logger, handlers.NewHealthHandler(nil, nil), ui))
	t.Cleanup(srv.Close)
	return srv
}

// restoringAuth подтверждает любой сохранённый токен как жителя.
type restoringAuth struct {
	phoneAuth
}

func (restoringAuth) Profile(context.Context) (*model.User, error) {
	return &model.User{ID: "restored", Type: model.UserTypeResident, FullName: "Restored"}, nil
}

// failingDelete — хранилище токенов, в котором не работает удаление.
type failingDelete struct {
	tokenstore.Store
}

func (failingDelete) Delete(context.Context, string) error {
	return errors.New("db down")
}

// newBrowser — клиент с cookie jar, не следующий за redirect.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func get(t *testing.T, c *http.Client, rawURL string) *http.Response {
	t.Helper()
	resp, err := c.Get(rawURL)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func login(t *testing.T, c *http.Client, base, phone, userType string) *http.Response {
	t.Helper()
	resp, err := c.PostForm(base+"/login", url.Values{
		"phone": {phone}, "password": {"secret"}, "userType": {userType},
	})
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectRedirect(t *testing.T, resp *http.Response, wantStatus int, wantLocation string) {
	t.Helper()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s: статус = %d, ожидался %d", resp.Request.URL.Path, resp.StatusCode, wantStatus)
	}
	if loc := resp.Header.Get("Location"); loc != wantLocation {
		t.Errorf("%s: Location = %q, ожидался %q", resp.Request.URL.Path, loc, wantLocation)
	}
}

func TestRouter_ServiceEndpointsWithoutSession(t *testing.T) {
	srv := newTestServer(t)
	c := newBrowser(t)

	for _, path := range []string{"/health/live", "/metrics", "/static/css/app.css"} {
		resp := get(t, c, srv.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: статус = %d", path, resp.StatusCode)
		}
		if len(resp.Cookies()) != 0 {
			t.Errorf("%s: выдан cookie сессии", path)
		}
	}
}

func TestRouter_UnauthenticatedRedirects(t *testing.T) {
	srv := newTestServer(t)
	c := newBrowser(t)

	for _, path := range []string{"/dashboard", "/profile", "/complaints", "/admin-dashboard", "/super-admin/audit"} {
		expectRedirect(t, get(t, c, srv.URL+path), http.StatusFound, "/login")
	}

	resp := get(t, c, srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/: статус = %d", resp.StatusCode)
	}
}

func TestRouter_APIRequiresSession(t *testing.T) {
	srv := newTestServer(t)
	c := newBrowser(t)

	resp := get(t, c, srv.URL+"/api/announcements")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("статус = %d, ожидался 401", resp.StatusCode)
	}
	if got := resp.Header.Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q", got)
	}
}

// TestRouter_AdminJourney: вход управляющего, доступ к своим страницам,
// отказ на страницах супер-админа, pass-through и выход.
func TestRouter_AdminJourney(t *testing.T) {
	srv := newTestServer(t)
	c := newBrowser(t)

	expectRedirect(t, login(t, c, srv.URL, "0911000002", "admin"), http.StatusSeeOther, "/admin-dashboard")

	resp := get(t, c, srv.URL+"/admin-dashboard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/admin-dashboard: статус = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Property Manager") || !strings.Contains(string(body), `href="/admin/finance"`) {
		t.Error("дашборд управляющего без роли или навигации")
	}

	if resp := get(t, c, srv.URL+"/admin/residents"); resp.StatusCode != http.StatusOK {
		t.Errorf("/admin/residents: статус = %d", resp.StatusCode)
	}
	expectRedirect(t, get(t, c, srv.URL+"/super-admin/admins"), http.StatusFound, "/unauthorized")
	expectRedirect(t, get(t, c, srv.URL+"/super-admin-dashboard"), http.StatusFound, "/unauthorized")
	expectRedirect(t, get(t, c, srv.URL+"/admin/unknown"), http.StatusFound, "/")
	expectRedirect(t, get(t, c, srv.URL+"/login"), http.StatusFound, "/admin-dashboard")

	resp = get(t, c, srv.URL+"/api/admin/residents?page=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api: статус = %d", resp.StatusCode)
	}
	body, _ = io.ReadAll(resp.Body)
	if string(body) != `{"path":"/admin/residents"}` {
		t.Errorf("/api: тело = %s", body)
	}

	logout, err := c.PostForm(srv.URL+"/logout", url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	logout.Body.Close()
	expectRedirect(t, logout, http.StatusSeeOther, "/login")
	expectRedirect(t, get(t, c, srv.URL+"/admin-dashboard"), http.StatusFound, "/login")
}

// TestRouter_SuperAdminIsNotAdmin: роль проверяется на равенство.
func TestRouter_SuperAdminIsNotAdmin(t *testing.T) {
	srv := newTestServer(t)
	c := newBrowser(t)

	expectRedirect(t, login(t, c, srv.URL, "0911000003", "admin"), http.StatusSeeOther, "/super-admin-dashboard")
	expectRedirect(t, get(t, c, srv.URL+"/admin-dashboard"), http.StatusFound, "/unauthorized")

	if resp := get(t, c, srv.URL+"/super-admin/backup"); resp.StatusCode != http.StatusOK {
		t.Errorf("/super-admin/backup: статус = %d", resp.StatusCode)
	}
}

func TestRouter_UnknownPathGoesHome(t *testing.T) {
	srv := newTestServer(t)
	c := newBrowser(t)

	expectRedirect(t, get(t, c, srv.URL+"/contact"), http.StatusFound, "/")
}

// TestRouter_SessionsAreIsolated: вход в одном браузере не виден в другом.
func TestRouter_SessionsAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	first, second := newBrowser(t), newBrowser(t)

	login(t, first, srv.URL, "0911000001", "resident")

	if resp := get(t, first, srv.URL+"/dashboard"); resp.StatusCode != http.StatusOK {
		t.Errorf("первый браузер: статус = %d", resp.StatusCode)
	}
	expectRedirect(t, get(t, second, srv.URL+"/dashboard"), http.StatusFound, "/login")
}

// TestRouter_LogoutNotRestoredAfterRestart: токен, который не удалось удалить
// при выходе, не возвращает сессию после рестарта процесса.
func TestRouter_LogoutNotRestoredAfterRestart(t *testing.T) {
	codec, err := session.NewCookieCodec("test-secret", false, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	tokens := failingDelete{tokenstore.NewMemory(100, time.Hour)}
	auth := restoringAuth{testPhones}

	before := newTestServerWith(t, auth, tokens, codec)
	c := newBrowser(t)

	expectRedirect(t, login(t, c, before.URL, "0911000001", "resident"), http.StatusSeeOther, "/dashboard")

	// Без выхода сессия переживает рестарт
	restarted := newTestServerWith(t, auth, tokens, codec)
	if resp := get(t, c, restarted.URL+"/dashboard"); resp.StatusCode != http.StatusOK {
		t.Fatalf("сессия не восстановлена после рестарта: статус = %d", resp.StatusCode)
	}

	logout, err := c.PostForm(restarted.URL+"/logout", url.Values{})
	if err != nil {
		t.Fatal(err)
	}
	logout.Body.Close()
	expectRedirect(t, logout, http.StatusSeeOther, "/login")

	after := newTestServerWith(t, auth, tokens, codec)
	expectRedirect(t, get(t, c, after.URL+"/dashboard"), http.StatusFound, "/login")
}
