// profile.go — просмотр и редактирование профиля.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rmsb/condo-portal/internal/apiclient"
	"github.com/rmsb/condo-portal/internal/domain/model"
	"github.com/rmsb/condo-portal/internal/ui/guard"
	"github.com/rmsb/condo-portal/internal/ui/i18n"
	"github.com/rmsb/condo-portal/internal/ui/pages"
)

// ProfileClient — обновление профиля в API.
type ProfileClient interface {
	UpdateProfile(ctx context.Context, update model.ProfileUpdate) (*model.User, error)
}

// ProfileHandler — обработчик /profile.
type ProfileHandler struct {
	client   ProfileClient
	validate *formValidator
	logger   *slog.Logger
}

// NewProfileHandler создаёт обработчик профиля.
func NewProfileHandler(client ProfileClient, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		client:   client,
		validate: newFormValidator(),
		logger:   logger.With(slog.String("component", "ui.profile")),
	}
}

// HandleProfilePage — GET /profile.
func (h *ProfileHandler) HandleProfilePage(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.logger)
	if !ok {
		return
	}
	user := store.Snapshot().User
	if user == nil {
		http.Redirect(w, r, guard.LoginRoute, http.StatusFound)
		return
	}

	form := pages.ProfileForm{User: user, Saved: r.URL.Query().Get("saved") == "1"}
	renderPage(w, r, h.logger, http.StatusOK, "profile.title", pages.Profile(form))
}

// HandleUpdateProfile — POST /profile. Отправляет PUT /auth/profile
// и сливает принятые сервером поля в пользователя сессии.
func (h *ProfileHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	store, ok := requireStore(w, r, h.logger)
	if !ok {
		return
	}
	user := store.Snapshot().User
	if user == nil {
		http.Redirect(w, r, guard.LoginRoute, http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	update, fieldErrs := profileUpdateFromRequest(r, user.Type)
	errs, err := h.validate.Validate(r.Context(), update)
	if err != nil {
		h.logger.Error("Ошибка валидации формы профиля", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	for k, v := range errs {
		if _, exists := fieldErrs[k]; !exists {
			fieldErrs[k] = v
		}
	}
	if len(fieldErrs) > 0 {
		// Форма показывает введённые значения поверх текущих
		form := pages.ProfileForm{User: update.Apply(user), FieldErrors: fieldErrs}
		renderPage(w, r, h.logger, http.StatusUnprocessableEntity, "profile.title", pages.Profile(form))
		return
	}

	updated, err := h.client.UpdateProfile(r.Context(), update)
	switch {
	case errors.Is(err, apiclient.ErrSessionInvalidated):
		redirect(w, r, guard.LoginRoute)
		return
	case err != nil:
		h.logger.Warn("Не удалось обновить профиль",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		form := pages.ProfileForm{User: update.Apply(user), Error: apiclient.MessageOf(err)}
		renderPage(w, r, h.logger, http.StatusOK, "profile.title", pages.Profile(form))
		return
	}

	// Сервер мог нормализовать поля: берём его версию, если она есть
	if updated != nil {
		update = model.ProfileUpdateFromUser(updated)
	}
	if !store.UpdateUser(update) {
		// Сессия завершилась, пока шёл запрос
		redirect(w, r, guard.LoginRoute)
		return
	}

	h.logger.Info("Профиль обновлён", slog.String("user_id", user.ID))
	redirect(w, r, "/profile?saved=1")
}

// profileUpdateFromRequest читает форму профиля. Ролевые поля жителя
// передаются как атрибуты.
func profileUpdateFromRequest(r *http.Request, userType model.UserType) (model.ProfileUpdate, map[string]string) {
	ctx := r.Context()
	fieldErrs := make(map[string]string)
	value := func(name string) string {
		return strings.TrimSpace(r.PostFormValue(name))
	}

	fullName := value("fullName")
	phone := value("phone")
	if fullName == "" {
		fieldErrs["fullName"] = i18n.T(ctx, "validation.required")
	}
	if phone == "" {
		fieldErrs["phone"] = i18n.T(ctx, "validation.required")
	}

	update := model.ProfileUpdate{
		FullName: &fullName,
		Phone:    &phone,
	}
	// Пустое поле email очищает адрес; отсутствующее поле его не трогает
	if _, ok := r.PostForm["email"]; ok {
		email := value("email")
		update.Email = &email
	}

	if userType != model.UserTypeResident {
		return update, fieldErrs
	}

	attrs := make(map[string]any)
	for _, key := range []string{"block", "houseNo", "carPlate"} {
		if v := value(key); v != "" {
			attrs[key] = v
		}
	}
	if v := value("familyMembers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fieldErrs["familyMembers"] = i18n.T(ctx, "validation.number")
		} else {
			attrs["familyMembers"] = n
		}
	}
	if len(attrs) > 0 {
		update.Attributes = attrs
	}
	return update, fieldErrs
}
