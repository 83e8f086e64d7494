// Пакет rbac — определение роли пользователя и его домашней страницы.
// Роль вычисляется только из model.UserType; отсутствие пользователя
// трактуется как житель.
package rbac

import (
	"strings"

	"github.com/rmsb/condo-portal/internal/domain/model"
)

// Отображаемые названия ролей.
const (
	DisplayResident   = "Resident"
	DisplayAdmin      = "Property Manager"
	DisplaySuperAdmin = "Super Admin"
)

// Домашние маршруты ролей.
const (
	HomeResident   = "/dashboard"
	HomeAdmin      = "/admin-dashboard"
	HomeSuperAdmin = "/super-admin-dashboard"
)

// Resolution — результат определения роли.
type Resolution struct {
	DisplayRole string
	HomeRoute   string
}

// RoleOf возвращает тип пользователя; nil — житель.
func RoleOf(u *model.User) model.UserType {
	if u == nil {
		return model.UserTypeResident
	}
	return u.Type
}

// Resolve определяет отображаемую роль и домашний маршрут пользователя.
// Функция тотальна: для nil и неизвестных типов возвращается ветка жителя.
func Resolve(u *model.User) Resolution {
	switch RoleOf(u) {
	case model.UserTypeSuperAdmin:
		return Resolution{DisplayRole: DisplaySuperAdmin, HomeRoute: HomeSuperAdmin}
	case model.UserTypeAdmin:
		return Resolution{DisplayRole: DisplayAdmin, HomeRoute: HomeAdmin}
	default:
		return Resolution{DisplayRole: DisplayResident, HomeRoute: HomeResident}
	}
}

// ParseRequiredRole разбирает требуемую роль маршрута.
// Допустимые значения: resident, admin, super_admin (или SUPER_ADMIN).
func ParseRequiredRole(s string) (model.UserType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resident":
		return model.UserTypeResident, true
	case "admin":
		return model.UserTypeAdmin, true
	case "super_admin":
		return model.UserTypeSuperAdmin, true
	default:
		return model.UserTypeResident, false
	}
}

// HasRole проверяет точное совпадение роли пользователя с требуемой.
// Супер-администратор не наследует права управляющего.
func HasRole(u *model.User, required model.UserType) bool {
	if u == nil {
		return false
	}
	return RoleOf(u) == required
}
