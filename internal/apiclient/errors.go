package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionInvalidated — API ответил 401 на запрос с токеном:
// сессия уже очищена обработчиком инвалидации, нужен переход на /login.
var ErrSessionInvalidated = errors.New("сессия недействительна")

// Сообщения для пользователя, когда сервер не прислал своего.
const (
	msgNetworkError = "Network error, please try again"
	msgUnknownError = "Request failed"
)

// APIError — ответ удалённого API с кодом не 2xx.
type APIError struct {
	// StatusCode — HTTP статус ответа.
	StatusCode int
	// Message — сообщение сервера (message / error / error.message).
	Message string
	// Payload — тело ответа как есть.
	Payload json.RawMessage
}

// Error реализует интерфейс error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API вернул статус %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API вернул статус %d", e.StatusCode)
}

// newAPIError разбирает тело ответа с ошибкой.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	if json.Valid(body) {
		apiErr.Payload = json.RawMessage(body)
		apiErr.Message = extractMessage(body)
	}
	return apiErr
}

// extractMessage извлекает сообщение из тела ошибки.
// Поддерживаемые формы: {"message": "..."}, {"error": "..."}, {"error": {"message": "..."}}.
func extractMessage(body []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	if len(payload.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Error, &s); err == nil {
		return s
	}
	var nested struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &nested); err == nil {
		return nested.Message
	}
	return ""
}

// MessageOf возвращает сообщение об ошибке для показа пользователю.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if text := http.StatusText(apiErr.StatusCode); text != "" {
			return text
		}
		return msgUnknownError
	}
	return msgNetworkError
}

// StatusOf возвращает HTTP статус из ошибки API (0 — ошибка не от API).
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
