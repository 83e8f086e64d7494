// Пакет layout — выбор боковой навигации по роли пользователя.
// Каждой роли соответствует фиксированный набор пунктов меню.
package layout

import (
	"strings"

	"github.com/rmsb/condo-portal/internal/domain/model"
)

// Variant — вариант раскладки.
type Variant int

const (
	VariantResident Variant = iota
	VariantAdmin
	VariantSuperAdmin
)

// String возвращает имя варианта (CSS-класс раскладки).
func (v Variant) String() string {
	switch v {
	case VariantAdmin:
		return "admin"
	case VariantSuperAdmin:
		return "super-admin"
	default:
		return "resident"
	}
}

// NavItem — пункт боковой навигации.
type NavItem struct {
	Path string
	// LabelKey — ключ перевода (i18n).
	LabelKey string
}

// Layout — раскладка страницы для роли.
type Layout struct {
	Variant Variant
	// TitleKey — ключ перевода заголовка боковой панели.
	TitleKey string
	Items    []NavItem
}

var residentItems = []NavItem{
	{"/dashboard", "nav.dashboard"},
	{"/announcements", "nav.announcements"},
	{"/complaints", "nav.my_complaints"},
	{"/parking", "nav.parking"},
	{"/utilities", "nav.utilities"},
	{"/ekub-eddir", "nav.ekub_eddir"},
	{"/services", "nav.services"},
}

var adminItems = []NavItem{
	{"/admin-dashboard", "nav.dashboard"},
	{"/admin/residents", "nav.residents"},
	{"/admin/announcements", "nav.announcements"},
	{"/admin/complaints", "nav.complaints"},
	{"/admin/parking", "nav.parking"},
	{"/admin/utilities", "nav.utilities"},
	{"/admin/groups", "nav.ekub_eddir"},
	{"/admin/services", "nav.services"},
	{"/admin/finance", "nav.finance"},
	{"/admin/settings", "nav.settings"},
}

var superAdminItems = []NavItem{
	{"/super-admin-dashboard", "nav.dashboard"},
	{"/super-admin/condominiums", "nav.condominiums"},
	{"/super-admin/admins", "nav.admins"},
	{"/super-admin/audit", "nav.audit_logs"},
	{"/super-admin/integrations", "nav.integrations"},
	{"/super-admin/backup", "nav.data_management"},
}

// ForRole возвращает раскладку для типа пользователя.
func ForRole(t model.UserType) Layout {
	switch t {
	case model.UserTypeSuperAdmin:
		return Layout{Variant: VariantSuperAdmin, TitleKey: "portal.super_admin", Items: clone(superAdminItems)}
	case model.UserTypeAdmin:
		return Layout{Variant: VariantAdmin, TitleKey: "portal.admin", Items: clone(adminItems)}
	default:
		return Layout{Variant: VariantResident, TitleKey: "portal.resident", Items: clone(residentItems)}
	}
}

// ForUser возвращает раскладку пользователя; false — пользователя нет,
// боковая навигация не показывается.
func ForUser(u *model.User) (Layout, bool) {
	if u == nil {
		return Layout{}, false
	}
	return ForRole(u.Type), true
}

// IsActive — пункт соответствует текущему пути.
func (item NavItem) IsActive(path string) bool {
	return path == item.Path || strings.HasPrefix(path, item.Path+"/")
}

// Find возвращает пункт навигации для пути.
func (l Layout) Find(path string) (NavItem, bool) {
	for _, item := range l.Items {
		if item.Path == path {
			return item, true
		}
	}
	return NavItem{}, false
}

func clone(items []NavItem) []NavItem {
	out := make([]NavItem, len(items))
	copy(out, items)
	return out
}
