// Пакет apiclient — HTTP-клиент удалённого REST API жилого комплекса.
// Все запросы используют общий base URL и JSON, к каждому запросу
// прикрепляется bearer-токен текущей сессии. Ответ 401 на запрос с токеном
// (кроме регистрации) приводит к инвалидации сессии через InvalidationHandler.
// Повторов нет.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Пути входа и регистрации — запросы к ним идут без bearer-токена.
const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
)

// apiRequestsTotal — исходящие запросы к API по методу и статусу.
var apiRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cp_api_client_requests_total",
		Help: "Количество запросов Condo Portal к удалённому API",
	},
	[]string{"method", "status"},
)

// TokenSource — источник bearer-токена текущей сессии.
// Пустая строка без ошибки — токена нет.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// InvalidationHandler — реакция на 401: очистка токена и состояния сессии.
// Переход на страницу входа выполняет вызывающий HTTP-обработчик
// по ErrSessionInvalidated.
type InvalidationHandler interface {
	SessionInvalidated(ctx context.Context)
}

// Config — параметры клиента.
type Config struct {
	// BaseURL — базовый URL API без trailing slash.
	BaseURL string
	// Timeout — таймаут запросов (используется при HTTPClient == nil).
	Timeout time.Duration
	// HealthPath — путь readiness-проверки API.
	HealthPath string
	// HTTPClient — HTTP-клиент (nil — создаётся новый с Timeout).
	HTTPClient *http.Client
}

// Client — клиент удалённого API.
type Client struct {
	baseURL    string
	healthPath string
	httpClient *http.Client
	tokens     TokenSource
	onInvalid  InvalidationHandler
	logger     *slog.Logger
}

// New создаёт клиент API.
// tokens и onInvalid могут быть nil (запросы без токена, без инвалидации).
func New(cfg Config, tokens TokenSource, onInvalid InvalidationHandler, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	healthPath := cfg.HealthPath
	if healthPath == "" {
		healthPath = "/health"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		healthPath: healthPath,
		httpClient: httpClient,
		tokens:     tokens,
		onInvalid:  onInvalid,
		logger:     logger.With(slog.String("component", "api_client")),
	}
}

// Get выполняет GET и декодирует JSON-ответ в out (out может быть nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post выполняет POST с JSON-телом.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

// Put выполняет PUT с JSON-телом.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

// Delete выполняет DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// Forward передаёт запрос в API как есть (для /api/* pass-through).
// При успехе (включая ответы с ошибкой, кроме инвалидирующего 401)
// вызывающий обязан закрыть resp.Body.
func (c *Client) Forward(ctx context.Context, method, path, rawQuery, contentType string, body io.Reader) (*http.Response, error) {
	target := path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return c.send(ctx, method, target, contentType, body)
}

// doJSON кодирует in, выполняет запрос и декодирует ответ в out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("кодирование тела запроса %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.send(ctx, method, path, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("чтение ответа %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("декодирование ответа %s %s: %w", method, path, err)
	}
	return nil
}

// send выполняет запрос с bearer-токеном и обрабатывает глобальный 401.
func (c *Client) send(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	// Вход и регистрация выполняются без токена: их 401 — ответ на
	// учётные данные, а не на сессию.
	var token string
	if !isCredentialPath(path) {
		token = c.token(ctx)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		apiRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("запрос %s %s: %w", method, path, err)
	}
	apiRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		c.logger.Info("API отклонил токен, сессия инвалидируется",
			slog.String("method", method),
			slog.String("path", path),
		)
		if c.onInvalid != nil {
			c.onInvalid.SessionInvalidated(ctx)
		}
		return nil, fmt.Errorf("%w: %w", ErrSessionInvalidated, newAPIError(resp.StatusCode, data))
	}

	return resp, nil
}

// token возвращает токен текущей сессии; ошибки источника не блокируют запрос.
func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("Не удалось получить токен сессии",
			slog.String("error", err.Error()),
		)
		return ""
	}
	return token
}

// CheckReady проверяет доступность API для readiness-проверки.
// Любой ответ ниже 500 считается признаком доступности.
func (c *Client) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return "fail", fmt.Sprintf("ошибка создания запроса: %v", err)
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации
	if err != nil {
		return "fail", fmt.Sprintf("API недоступен: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return "degraded", fmt.Sprintf("API вернул статус %d", resp.StatusCode)
	}
	return "ok", "API доступен"
}

// isCredentialPath проверяет, является ли путь вызовом входа или регистрации.
func isCredentialPath(path string) bool {
	return strings.Contains(path, loginPath) || strings.Contains(path, registerPath)
}
