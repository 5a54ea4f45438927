// ABOUTME: Form binding and struct-tag validation for console POSTs
// ABOUTME: Uses go-playground/validator and turns field errors into operator-facing text

package webadmin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/2389/keyconsole/internal/backend"
)

type loginForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=16,max=256"`
	MFAToken string `validate:"omitempty,len=6,numeric"`
}

type generateForm struct {
	Expiry string `validate:"required,expiry"`
}

type revokeForm struct {
	Key   string `validate:"required,max=512"`
	Index int    `validate:"gte=0"`
}

type dialogForm struct {
	Action string `validate:"required,oneof=open close"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Only fails for a malformed tag name.
	_ = v.RegisterValidation("expiry", isExpiryCode)
	return v
}

func isExpiryCode(fl validator.FieldLevel) bool {
	_, err := backend.ParseExpiry(fl.Field().String())
	return err == nil
}

func bindLoginForm(r *http.Request) loginForm {
	return loginForm{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
		MFAToken: strings.TrimSpace(r.FormValue("mfa_token")),
	}
}

func bindRevokeForm(r *http.Request) (revokeForm, error) {
	f := revokeForm{Key: r.FormValue("key"), Index: -1}
	if raw := r.FormValue("index"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return f, errors.New("index must be a number")
		}
		f.Index = idx
	}
	return f, nil
}

// validationMessage returns one readable line per failed field, or "" when
// err is nil
func validationMessage(err error) string {
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return strings.Join(msgs, "; ")
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, param)
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "expiry":
		codes := make([]string, 0, len(backend.ExpiryOptions))
		for _, opt := range backend.ExpiryOptions {
			codes = append(codes, string(opt.Code))
		}
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(codes, ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
