package model

import (
	"encoding/json"
	"testing"
)

func TestUserTypeFromWire(t *testing.T) {
	tests := []struct {
		name     string
		userType string
		role     string
		want     UserType
	}{
		{name: "admin + SUPER_ADMIN -> super admin", userType: "admin", role: "SUPER_ADMIN", want: UserTypeSuperAdmin},
		{name: "super_admin как тип", userType: "super_admin", want: UserTypeSuperAdmin},
		{name: "admin без роли", userType: "admin", want: UserTypeAdmin},
		{name: "admin с другой ролью", userType: "admin", role: "MANAGER", want: UserTypeAdmin},
		{name: "resident", userType: "resident", want: UserTypeResident},
		{name: "resident с SUPER_ADMIN игнорируется", userType: "resident", role: "SUPER_ADMIN", want: UserTypeResident},
		{name: "пустой тип", want: UserTypeResident},
		{name: "неизвестный тип", userType: "guard", want: UserTypeResident},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserTypeFromWire(tt.userType, tt.role); got != tt.want {
				t.Errorf("UserTypeFromWire(%q, %q) = %v, хотели %v", tt.userType, tt.role, got, tt.want)
			}
		})
	}
}

func TestUserUnmarshalJSON(t *testing.T) {
	data := []byte(`{
		"_id": "64f1c0",
		"type": "resident",
		"name": "Abebe Kebede",
		"phone": "0911000000",
		"block": "B12",
		"houseNo": "4",
		"familyMembers": 3
	}`)

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}

	if u.ID != "64f1c0" {
		t.Errorf("ID = %q, ожидается 64f1c0 (из _id)", u.ID)
	}
	if u.FullName != "Abebe Kebede" {
		t.Errorf("FullName = %q, ожидается fallback на name", u.FullName)
	}
	if u.Type != UserTypeResident {
		t.Errorf("Type = %v, ожидается resident", u.Type)
	}
	if u.Attribute("block") != "B12" {
		t.Errorf("block = %q, ожидается B12", u.Attribute("block"))
	}
	if u.Attribute("familyMembers") != "3" {
		t.Errorf("familyMembers = %q, ожидается 3", u.Attribute("familyMembers"))
	}
	if _, ok := u.Attributes["name"]; ok {
		t.Error("известные поля не должны попадать в Attributes")
	}
}

func TestUserMarshalJSON_SuperAdmin(t *testing.T) {
	u := User{ID: "1", Type: UserTypeSuperAdmin, FullName: "Root"}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("ошибка кодирования: %v", err)
	}

	var back User
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("ошибка декодирования: %v", err)
	}
	if back.Type != UserTypeSuperAdmin {
		t.Errorf("Type = %v после повторного декодирования, ожидается super_admin", back.Type)
	}
}

func TestProfileUpdateApply(t *testing.T) {
	orig := &User{
		ID: "7", FullName: "Old", Phone: "0911", Email: "old@example.com",
		Attributes: map[string]any{"block": "A1"},
	}
	name := "X"

	merged := ProfileUpdate{FullName: &name}.Apply(orig)

	if merged.FullName != "X" {
		t.Errorf("FullName = %q, ожидается X", merged.FullName)
	}
	if merged.Phone != "0911" || merged.Email != "old@example.com" || merged.ID != "7" {
		t.Errorf("прочие поля не должны меняться: %+v", merged)
	}
	if orig.FullName != "Old" {
		t.Error("Apply не должен изменять исходного пользователя")
	}
	if merged.Attribute("block") != "A1" {
		t.Error("атрибуты должны сохраняться")
	}
}

func TestProfileUpdateFromUser(t *testing.T) {
	server := &User{
		ID:         "u1",
		FullName:   "ABEBE",
		Phone:      "+251911000000",
		Attributes: map[string]any{"block": "D"},
	}
	update := ProfileUpdateFromUser(server)

	if update.Email == nil || *update.Email != "" {
		t.Error("email без значения в записи сервера должен очищаться")
	}
	merged := update.Apply(&User{ID: "u1", FullName: "Abebe", Email: "a@example.com"})
	if merged.FullName != "ABEBE" || merged.Phone != "+251911000000" || merged.Email != "" {
		t.Errorf("merged = %+v", merged)
	}
	if merged.Attribute("block") != "D" {
		t.Errorf("block = %q", merged.Attribute("block"))
	}

	if empty := ProfileUpdateFromUser(nil); empty.FullName != nil || empty.Attributes != nil {
		t.Errorf("для nil ожидалось пустое обновление: %+v", empty)
	}
}
