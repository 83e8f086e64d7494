// Пакет model — доменные модели Condo Portal.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// UserType — тип пользователя (единственный дискриминант роли).
// Удалённый API кодирует супер-администратора как type=admin + role=SUPER_ADMIN;
// при декодировании оба поля сворачиваются в одно значение UserType.
type UserType int

const (
	// UserTypeResident — житель (значение по умолчанию).
	UserTypeResident UserType = iota
	// UserTypeAdmin — управляющий (Property Manager).
	UserTypeAdmin
	// UserTypeSuperAdmin — супер-администратор платформы.
	UserTypeSuperAdmin
)

// Значения полей type/role на проводе.
const (
	wireTypeResident   = "resident"
	wireTypeAdmin      = "admin"
	wireTypeSuperAdmin = "super_admin"
	wireRoleSuperAdmin = "SUPER_ADMIN"
)

// String возвращает каноническое имя типа пользователя.
func (t UserType) String() string {
	switch t {
	case UserTypeAdmin:
		return wireTypeAdmin
	case UserTypeSuperAdmin:
		return wireTypeSuperAdmin
	default:
		return wireTypeResident
	}
}

// UserTypeFromWire сворачивает пару type/role из ответа API в UserType.
// Неизвестные значения трактуются как житель.
func UserTypeFromWire(userType, role string) UserType {
	switch strings.ToLower(userType) {
	case wireTypeSuperAdmin:
		return UserTypeSuperAdmin
	case wireTypeAdmin:
		if strings.EqualFold(role, wireRoleSuperAdmin) {
			return UserTypeSuperAdmin
		}
		return UserTypeAdmin
	default:
		return UserTypeResident
	}
}

// wireFields разворачивает UserType обратно в пару type/role для API.
func (t UserType) wireFields() (userType, role string) {
	switch t {
	case UserTypeSuperAdmin:
		return wireTypeAdmin, wireRoleSuperAdmin
	case UserTypeAdmin:
		return wireTypeAdmin, ""
	default:
		return wireTypeResident, ""
	}
}

// User — аутентифицированный пользователь.
// Ролевые атрибуты (block, houseNo, carPlate, ...) непрозрачны для сессии
// и хранятся как есть в Attributes.
type User struct {
	ID       string
	Type     UserType
	FullName string
	Phone    string
	Email    string
	// Attributes — прочие поля записи пользователя без интерпретации.
	Attributes map[string]any
}

// Известные ключи записи пользователя на проводе.
var knownUserKeys = map[string]bool{
	"id": true, "_id": true, "type": true, "role": true,
	"fullName": true, "name": true, "phone": true, "email": true,
}

// UnmarshalJSON декодирует запись пользователя из ответа API.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("ошибка декодирования пользователя: %w", err)
	}

	str := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
		// Числовые идентификаторы и прочие скаляры — как есть
		return strings.Trim(string(v), `"`)
	}

	*u = User{
		ID:       str("id"),
		Type:     UserTypeFromWire(str("type"), str("role")),
		FullName: str("fullName"),
		Phone:    str("phone"),
		Email:    str("email"),
	}
	if u.ID == "" {
		u.ID = str("_id")
	}
	if u.FullName == "" {
		u.FullName = str("name")
	}

	for key, value := range raw {
		if knownUserKeys[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("ошибка декодирования поля %s: %w", key, err)
		}
		if u.Attributes == nil {
			u.Attributes = make(map[string]any)
		}
		u.Attributes[key] = v
	}
	return nil
}

// MarshalJSON кодирует пользователя в формат API (type + role).
func (u User) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(u.Attributes)+6)
	for k, v := range u.Attributes {
		out[k] = v
	}
	userType, role := u.Type.wireFields()
	out["id"] = u.ID
	out["type"] = userType
	if role != "" {
		out["role"] = role
	}
	out["fullName"] = u.FullName
	out["phone"] = u.Phone
	if u.Email != "" {
		out["email"] = u.Email
	}
	return json.Marshal(out)
}

// Clone возвращает копию пользователя (Attributes копируются поверхностно).
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Attributes != nil {
		c.Attributes = make(map[string]any, len(u.Attributes))
		for k, v := range u.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// Attribute возвращает строковое представление непрозрачного атрибута.
func (u *User) Attribute(key string) string {
	if u == nil || u.Attributes == nil {
		return ""
	}
	v, ok := u.Attributes[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// DisplayName возвращает имя для шапки страницы.
func (u *User) DisplayName() string {
	if u == nil || u.FullName == "" {
		return "User"
	}
	return u.FullName
}
