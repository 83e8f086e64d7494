package handlers

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rmsb/condo-portal/internal/ui/i18n"
)

// formValidator проверяет данные форм по тегам validate.
// Ошибки возвращаются по JSON-имени поля, совпадающему с name в форме.
type formValidator struct {
	v *validator.Validate
}

func newFormValidator() *formValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &formValidator{v: v}
}

// Validate возвращает ошибки полей; nil — данные корректны.
func (fv *formValidator) Validate(ctx context.Context, s any) (map[string]string, error) {
	err := fv.v.Struct(s)
	if err == nil {
		return nil, nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, err
	}

	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = fieldError(ctx, fe)
	}
	return out, nil
}

// fieldError переводит ошибку валидации поля в сообщение на языке запроса.
func fieldError(ctx context.Context, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return i18n.T(ctx, "validation.required")
	case "email":
		return i18n.T(ctx, "validation.email")
	case "min":
		return i18n.Tf(ctx, "validation.min", fe.Param())
	case "max":
		return i18n.Tf(ctx, "validation.max", fe.Param())
	case "oneof":
		return i18n.Tf(ctx, "validation.oneof", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return i18n.T(ctx, "validation.invalid")
	}
}
