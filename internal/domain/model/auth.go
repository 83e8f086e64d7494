package model

// Credentials — данные формы входа (POST /auth/login).
type Credentials struct {
	Phone    string `json:"phone" validate:"required,min=7,max=20"`
	Password string `json:"password" validate:"required"`
	UserType string `json:"userType" validate:"required,oneof=resident admin"`
}

// AuthResult — ответ API на успешный вход.
type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// RegistrationProfile — данные регистрации жителя (POST /auth/register).
// Пустые необязательные поля отправляются как null.
type RegistrationProfile struct {
	FullName      string  `json:"fullName" validate:"required,min=2"`
	Phone         string  `json:"phone" validate:"required,min=7,max=20"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Block         string  `json:"block" validate:"required"`
	HouseNo       string  `json:"houseNo" validate:"required"`
	OwnershipType string  `json:"ownershipType" validate:"required,oneof=owner tenant"`
	OwnerName     *string `json:"ownerName"`
	FamilyMembers int     `json:"familyMembers" validate:"min=1"`
	CarPlate      *string `json:"carPlate"`
	Password      string  `json:"password" validate:"required,min=6"`
	CondominiumID string  `json:"condominiumId" validate:"required"`
}

// ProfileUpdate — частичное обновление профиля (PUT /auth/profile).
// nil-поля не изменяются.
type ProfileUpdate struct {
	FullName *string `json:"fullName,omitempty" validate:"omitempty,min=2"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	// Attributes — ролевые поля (block, houseNo, familyMembers, carPlate).
	Attributes map[string]any `json:"-"`
}

// Apply сливает изменения в копию пользователя и возвращает её.
func (p ProfileUpdate) Apply(u *User) *User {
	if u == nil {
		return nil
	}
	merged := u.Clone()
	if p.FullName != nil {
		merged.FullName = *p.FullName
	}
	if p.Phone != nil {
		merged.Phone = *p.Phone
	}
	if p.Email != nil {
		merged.Email = *p.Email
	}
	if len(p.Attributes) > 0 {
		if merged.Attributes == nil {
			merged.Attributes = make(map[string]any, len(p.Attributes))
		}
		for k, v := range p.Attributes {
			merged.Attributes[k] = v
		}
	}
	return merged
}

// Payload возвращает тело запроса PUT /auth/profile.
func (p ProfileUpdate) Payload() map[string]any {
	out := make(map[string]any, len(p.Attributes)+3)
	for k, v := range p.Attributes {
		out[k] = v
	}
	if p.FullName != nil {
		out["fullName"] = *p.FullName
	}
	if p.Phone != nil {
		out["phone"] = *p.Phone
	}
	if p.Email != nil {
		out["email"] = *p.Email
	}
	return out
}

// ProfileUpdateFromUser строит обновление из записи пользователя,
// которую API вернул после PUT /auth/profile.
func ProfileUpdateFromUser(u *User) ProfileUpdate {
	if u == nil {
		return ProfileUpdate{}
	}
	// Запись сервера полная: отсутствующий email означает, что он удалён
	return ProfileUpdate{
		FullName:   &u.FullName,
		Phone:      &u.Phone,
		Email:      &u.Email,
		Attributes: u.Attributes,
	}
}
