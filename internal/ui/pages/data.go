// Пакет pages — серверные страницы портала.
// Разметка описана в *.templ, код *_templ.go генерирует `templ generate`.
// Здесь — данные страниц и вспомогательные функции шаблонов.
package pages

//go:generate templ generate

import (
	"fmt"
	"sort"

	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/ui/i18n"
	"github.com/rmsb/condo-portal/internal/ui/layout"
)

// Shell — общие данные страницы.
type Shell struct {
	// TitleKey — ключ перевода заголовка страницы.
	TitleKey string
	// User — текущий пользователь (nil — публичная раскладка без боковой панели).
	User *model.User
	// CurrentPath — путь запроса (подсветка пункта меню).
	CurrentPath string
}

// LoginForm — значения и ошибки формы входа.
type LoginForm struct {
	Phone    string
	UserType string
	// Error — сообщение сессии (ответ сервера).
	Error string
	// FieldErrors — ошибки валидации по имени поля.
	FieldErrors map[string]string
	// Registered — вход после успешной регистрации.
	Registered bool
}

// RegisterForm — значения и ошибки формы регистрации.
type RegisterForm struct {
	FullName      string
	Phone         string
	Email         string
	Block         string
	HouseNo       string
	OwnershipType string
	OwnerName     string
	FamilyMembers string
	CarPlate      string
	CondominiumID string

	Error       string
	FieldErrors map[string]string
}

// DashboardData — данные главной страницы роли.
type DashboardData struct {
	User        *model.User
	DisplayRole string
	// Summary — сводка API (/dashboard/<роль>), ключ → значение.
	Summary map[string]any
	Error   string
}

// SectionData — раздел, данные которого страница загружает через /api.
type SectionData struct {
	TitleKey string
	// APIPath — путь pass-through, откуда раздел получает данные.
	APIPath string
}

// ProfileForm — данные страницы профиля.
type ProfileForm struct {
	User        *model.User
	Error       string
	FieldErrors map[string]string
	Saved       bool
}

// formField — поле ввода с подписью и ошибкой валидации.
type formField struct {
	Name     string
	Type     string
	LabelKey string
	Value    string
	Error    string
	Required bool
}

// option — вариант выпадающего списка.
type option struct {
	Value    string
	LabelKey string
}

var publicLinks = []layout.NavItem{
	{Path: "/", LabelKey: "nav.home"},
	{Path: "/about", LabelKey: "nav.about"},
	{Path: "/login", LabelKey: "nav.login"},
	{Path: "/register", LabelKey: "nav.register"},
}

var languages = []string{i18n.LangEnglish, i18n.LangAmharic}

var loginUserTypes = []option{
	{"resident", "role.resident"},
	{"admin", "role.admin"},
}

var ownershipTypes = []option{
	{"owner", "form.ownership_owner"},
	{"tenant", "form.ownership_tenant"},
}

// orDefault — value или def для пустого значения.
func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

// summaryKeys возвращает ключи сводки по алфавиту.
func summaryKeys(summary map[string]any) []string {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// summaryValue форматирует значение сводки.
func summaryValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%.2f", val)
	case string:
		return val
	case []any:
		return fmt.Sprintf("%d", len(val))
	case map[string]any:
		return fmt.Sprintf("%d", len(val))
	default:
		return fmt.Sprint(val)
	}
}
