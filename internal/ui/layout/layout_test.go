package layout

import (
	"strings"
	"testing"

	"github.com/rmsb/condo-portal/internal/domain/model"
)

func paths(l Layout) []string {
	out := make([]string, len(l.Items))
	for i, item := range l.Items {
		out[i] = item.Path
	}
	return out
}

func TestForRole(t *testing.T) {
	tests := []struct {
		name      string
		role      model.UserType
		variant   Variant
		wantFirst string
		wantCount int
	}{
		{"житель", model.UserTypeResident, VariantResident, "/dashboard", 7},
		{"управляющий", model.UserTypeAdmin, VariantAdmin, "/admin-dashboard", 10},
		{"супер-админ", model.UserTypeSuperAdmin, VariantSuperAdmin, "/super-admin-dashboard", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ForRole(tt.role)
			if l.Variant != tt.variant {
				t.Errorf("Variant = %v, ожидали %v", l.Variant, tt.variant)
			}
			if len(l.Items) != tt.wantCount {
				t.Errorf("пунктов = %d, ожидали %d: %v", len(l.Items), tt.wantCount, paths(l))
			}
			if l.Items[0].Path != tt.wantFirst {
				t.Errorf("первый пункт = %q", l.Items[0].Path)
			}
		})
	}
}

// TestForRole_NoCrossRoleItems: пункты одной роли не ведут в разделы другой.
func TestForRole_NoCrossRoleItems(t *testing.T) {
	for _, p := range paths(ForRole(model.UserTypeAdmin)) {
		if !strings.HasPrefix(p, "/admin-") && !strings.HasPrefix(p, "/admin/") {
			t.Errorf("пункт управляющего вне /admin: %q", p)
		}
	}
	for _, p := range paths(ForRole(model.UserTypeSuperAdmin)) {
		if !strings.HasPrefix(p, "/super-admin") {
			t.Errorf("пункт супер-админа вне /super-admin: %q", p)
		}
	}
	for _, p := range paths(ForRole(model.UserTypeResident)) {
		if strings.HasPrefix(p, "/admin") || strings.HasPrefix(p, "/super-admin") {
			t.Errorf("пункт жителя ведёт в административный раздел: %q", p)
		}
	}
}

func TestForRole_ReturnsCopy(t *testing.T) {
	l := ForRole(model.UserTypeResident)
	l.Items[0].Path = "/changed"

	if ForRole(model.UserTypeResident).Items[0].Path != "/dashboard" {
		t.Error("изменение результата повлияло на таблицу навигации")
	}
}

func TestForUser(t *testing.T) {
	if _, ok := ForUser(nil); ok {
		t.Error("ForUser(nil) должен возвращать false")
	}
	l, ok := ForUser(&model.User{Type: model.UserTypeSuperAdmin})
	if !ok || l.Variant != VariantSuperAdmin {
		t.Errorf("ForUser() = %v, %v", l.Variant, ok)
	}
}

func TestNavItem_IsActive(t *testing.T) {
	item := NavItem{Path: "/admin/complaints"}
	if !item.IsActive("/admin/complaints") || !item.IsActive("/admin/complaints/7") {
		t.Error("IsActive() = false для вложенного пути")
	}
	if item.IsActive("/admin/complaints-archive") {
		t.Error("IsActive() = true для другого раздела")
	}
}
