package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stackhq/stack-api/internal/domain"
	"github.com/stackhq/stack-api/internal/http/reqctx"
)

var validate = newValidator()

// newValidator reports fields by their JSON name so messages match what the
// client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type enqueueJobRequest struct {
	Name         string         `json:"name" validate:"required"`
	Payload      map[string]any `json:"payload"`
	DelaySeconds float64        `json:"delaySeconds" validate:"gte=0,lte=2592000"`
}

// bind decodes the JSON body accepted by the body parser into dst and checks
// its validate tags. Every failure is benign.
func bind(r *http.Request, rc *reqctx.Context, dst any) error {
	if rc.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return domain.BenignWrap("Invalid JSON body.", err)
		}
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError reports the first failing field.
func validationError(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return domain.Internal("validate request", err)
	}
	e := fieldErrors[0]
	var msg string
	switch e.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required.", e.Field())
	case "email":
		msg = fmt.Sprintf("%s must be a valid email address.", e.Field())
	case "min":
		msg = fmt.Sprintf("%s must be at least %s characters.", e.Field(), e.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters.", e.Field(), e.Param())
	default:
		msg = fmt.Sprintf("%s is invalid.", e.Field())
	}
	return domain.BenignWrap(msg, err)
}
