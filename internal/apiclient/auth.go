// auth.go — вызовы /auth/* и /dashboard/* удалённого API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rmsb/condo-portal/internal/domain/model"
)

// errBadAuthResponse — ответ входа без токена или пользователя.
var errBadAuthResponse = errors.New("ответ входа не содержит token и user")

// Login — POST /auth/login {phone, password, userType} → {token, user}.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (*model.AuthResult, error) {
	var result model.AuthResult
	if err := c.Post(ctx, loginPath, creds, &result); err != nil {
		return nil, err
	}
	if result.Token == "" || result.User == nil {
		return nil, errBadAuthResponse
	}
	return &result, nil
}

// Register — POST /auth/register. Аккаунт создаётся без выдачи токена.
func (c *Client) Register(ctx context.Context, profile model.RegistrationProfile) error {
	return c.Post(ctx, registerPath, profile, nil)
}

// Profile — GET /auth/profile: подтверждение пользователя по токену.
func (c *Client) Profile(ctx context.Context) (*model.User, error) {
	var raw json.RawMessage
	if err := c.Get(ctx, "/auth/profile", &raw); err != nil {
		return nil, err
	}
	user, err := decodeUser(raw)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("пустой ответ GET /auth/profile")
	}
	return user, nil
}

// UpdateProfile — PUT /auth/profile. Возвращает обновлённого пользователя,
// если API его прислал (иначе nil без ошибки).
func (c *Client) UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.User, error) {
	var raw json.RawMessage
	if err := c.Put(ctx, "/auth/profile", update.Payload(), &raw); err != nil {
		return nil, err
	}
	return decodeUser(raw)
}

// Dashboard — сводка для главной страницы роли:
// GET /dashboard/resident, /dashboard/admin или /dashboard/super.
func (c *Client) Dashboard(ctx context.Context, role model.UserType) (map[string]any, error) {
	kind := "resident"
	switch role {
	case model.UserTypeAdmin:
		kind = "admin"
	case model.UserTypeSuperAdmin:
		kind = "super"
	}

	var summary map[string]any
	if err := c.Get(ctx, "/dashboard/"+kind, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// decodeUser разбирает пользователя из ответа вида {...} или {"user": {...}}.
func decodeUser(raw json.RawMessage) (*model.User, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var envelope struct {
		User json.RawMessage `json:"user"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("декодирование пользователя: %w", err)
	}
	switch {
	case len(envelope.User) > 0:
		raw = envelope.User
	case len(envelope.Data) > 0:
		raw = envelope.Data
	}

	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, err
	}
	// Ответ без полей пользователя (например, {"message": "ok"})
	if user.ID == "" && user.FullName == "" {
		return nil, nil
	}
	return &user, nil
}
