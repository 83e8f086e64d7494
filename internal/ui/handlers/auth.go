// auth.go — обработчики входа, регистрации и выхода.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/domain/rbac"
	"github.com/rmsb/condo-portal/internal/session"
	"github.com/rmsb/condo-portal/internal/ui/guard"
	"github.com/rmsb/condo-portal/internal/ui/i18n"
	"github.com/rmsb/condo-portal/internal/ui/pages"
)

// SessionRotator заменяет идентификатор браузерной сессии.
// Реализуется *middleware.Session.
type SessionRotator interface {
	Rotate(w http.ResponseWriter, r *http.Request)
}

// AuthHandler — обработчик страниц /login, /register и /logout.
type AuthHandler struct {
	sessions SessionRotator
	validate *formValidator
	logger   *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(sessions SessionRotator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		validate: newFormValidator(),
		logger:   logger.With(slog.String("component", "ui.auth")),
	}
}

// HandleLoginPage — GET /login. Вошедший пользователь переходит
// на домашнюю страницу своей роли.
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.logger)
	if !ok {
		return
	}

	state := store.Snapshot()
	if state.IsAuthenticated() {
		http.Redirect(w, r, rbac.Resolve(state.User).HomeRoute, http.StatusFound)
		return
	}

	// Новая попытка входа начинается без сообщения прошлой
	store.ClearError()

	form := pages.LoginForm{Registered: r.URL.Query().Get("registered") == "1"}
	renderPage(w, r, h.logger, http.StatusOK, "login.title", pages.Login(form))
}

// HandleLogin — POST /login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.logger)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	creds := model.Credentials{
		Phone:    strings.TrimSpace(r.PostFormValue("phone")),
		Password: r.PostFormValue("password"),
		UserType: r.PostFormValue("userType"),
	}
	form := pages.LoginForm{Phone: creds.Phone, UserType: creds.UserType}

	fieldErrs, err := h.validate.Validate(r.Context(), creds)
	if err != nil {
		h.logger.Error("Ошибка валидации формы входа", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if fieldErrs != nil {
		form.FieldErrors = fieldErrs
		renderPage(w, r, h.logger, http.StatusUnprocessableEntity, "login.title", pages.Login(form))
		return
	}

	err = store.Login(r.Context(), creds)
	switch {
	case errors.Is(err, session.ErrStale):
		// Сессия завершилась, пока шёл запрос: начинаем заново
		http.Redirect(w, r, guard.LoginRoute, http.StatusSeeOther)
		return
	case err != nil:
		h.logger.Info("Неудачный вход",
			slog.String("user_type", creds.UserType),
			slog.String("error", err.Error()),
		)
		form.Error = store.Snapshot().Error
		renderPage(w, r, h.logger, http.StatusUnauthorized, "login.title", pages.Login(form))
		return
	}

	redirect(w, r, rbac.Resolve(store.Snapshot().User).HomeRoute)
}

// HandleRegisterPage — GET /register.
func (h *AuthHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.logger)
	if !ok {
		return
	}
	store.ClearError()
	renderPage(w, r, h.logger, http.StatusOK, "register.title", pages.Register(pages.RegisterForm{}))
}

// HandleRegister — POST /register. После успешной регистрации
// пользователь входит отдельно.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.logger)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	form := registerFormFromRequest(r)
	profile, fieldErrs := registrationProfile(r.Context(), form, r.PostFormValue("password"))

	errs, err := h.validate.Validate(r.Context(), profile)
	if err != nil {
		h.logger.Error("Ошибка валидации формы регистрации", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	for k, v := range errs {
		if _, exists := fieldErrs[k]; !exists {
			fieldErrs[k] = v
		}
	}
	if r.PostFormValue("confirmPassword") != r.PostFormValue("password") {
		fieldErrs["confirmPassword"] = i18n.T(r.Context(), "form.passwords_mismatch")
	}
	if len(fieldErrs) > 0 {
		form.FieldErrors = fieldErrs
		renderPage(w, r, h.logger, http.StatusUnprocessableEntity, "register.title", pages.Register(form))
		return
	}

	if err := store.Register(r.Context(), profile); err != nil {
		h.logger.Info("Неудачная регистрация", slog.String("error", err.Error()))
		form.Error = store.Snapshot().Error
		renderPage(w, r, h.logger, http.StatusOK, "register.title", pages.Register(form))
		return
	}

	h.logger.Info("Зарегистрирован житель", slog.String("condominium_id", profile.CondominiumID))
	redirect(w, r, guard.LoginRoute+"?registered=1")
}

// HandleLogout — POST /logout.
// Состояние в памяти очищается всегда. Браузер получает новый
// идентификатор сессии, поэтому токен, не удалённый из хранилища,
// не восстановит завершённую сессию.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.logger)
	if !ok {
		return
	}
	if err := store.Logout(r.Context()); err != nil {
		h.logger.Warn("Выход: токен не удалён из хранилища, сессия заменена",
			slog.String("session_id", store.ID()),
			slog.String("error", err.Error()),
		)
	}
	h.sessions.Rotate(w, r)
	redirect(w, r, guard.LoginRoute)
}

// registerFormFromRequest читает поля формы регистрации.
func registerFormFromRequest(r *http.Request) pages.RegisterForm {
	value := func(name string) string {
		return strings.TrimSpace(r.PostFormValue(name))
	}
	return pages.RegisterForm{
		FullName:      value("fullName"),
		Phone:         value("phone"),
		Email:         value("email"),
		Block:         value("block"),
		HouseNo:       value("houseNo"),
		OwnershipType: value("ownershipType"),
		OwnerName:     value("ownerName"),
		FamilyMembers: value("familyMembers"),
		CarPlate:      value("carPlate"),
		CondominiumID: value("condominiumId"),
	}
}

// registrationProfile переводит форму в тело POST /auth/register.
// Пустые необязательные поля становятся nil.
func registrationProfile(ctx context.Context, form pages.RegisterForm, password string) (model.RegistrationProfile, map[string]string) {
	fieldErrs := make(map[string]string)

	members := 1
	if form.FamilyMembers != "" {
		n, err := strconv.Atoi(form.FamilyMembers)
		if err != nil {
			fieldErrs["familyMembers"] = i18n.T(ctx, "validation.number")
		} else {
			members = n
		}
	}

	return model.RegistrationProfile{
		FullName:      form.FullName,
		Phone:         form.Phone,
		Email:         optional(form.Email),
		Block:         form.Block,
		HouseNo:       form.HouseNo,
		OwnershipType: form.OwnershipType,
		OwnerName:     optional(form.OwnerName),
		FamilyMembers: members,
		CarPlate:      optional(form.CarPlate),
		Password:      password,
		CondominiumID: form.CondominiumID,
	}, fieldErrs
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
