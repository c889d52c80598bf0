package handlers

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/charlesng35/timecapsule/internal/models"
	appErrors "github.com/charlesng35/timecapsule/pkg/errors"
	"github.com/charlesng35/timecapsule/pkg/response"
	appValidator "github.com/charlesng35/timecapsule/pkg/validator"
)

var capsuleRules sync.Once

// registerCapsuleRules installs the capsule_privacy and answer_choice tags.
func registerCapsuleRules() {
	capsuleRules.Do(func() {
		rules := map[string]validator.Func{
			"capsule_privacy": func(fl validator.FieldLevel) bool {
				switch models.CapsulePrivacy(strings.ToLower(strings.TrimSpace(fl.Field().String()))) {
				case models.PrivacyPublic, models.PrivacyPrivate:
					return true
				}
				return false
			},
			"answer_choice": func(fl validator.FieldLevel) bool {
				switch strings.ToUpper(strings.TrimSpace(fl.Field().String())) {
				case "A", "B", "C", "D":
					return true
				}
				return false
			},
		}
		for tag, fn := range rules {
			if err := appValidator.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("register %s validation: %v", tag, err))
			}
		}
	})
}

func validatePayload(dest any) error {
	registerCapsuleRules()
	return appValidator.ValidateStruct(dest)
}

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := validatePayload(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	ve, ok := err.(appValidator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		messages = append(messages, describeFailure(failure))
	}
	return strings.Join(messages, "; ")
}

func describeFailure(failure appValidator.ValidationError) string {
	field := prettifyFieldName(failure.Field)
	switch failure.Tag {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "capsule_privacy":
		return fmt.Sprintf("%s must be public or private", field)
	case "answer_choice":
		return fmt.Sprintf("%s must be one of A, B, C or D", field)
	case "min", "max":
		bound := "at least"
		if failure.Tag == "max" {
			bound = "at most"
		}
		switch failure.Kind {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if failure.Field == "notification_interval" {
				return fmt.Sprintf("%s must be %s %s days", field, bound, failure.Param)
			}
			return fmt.Sprintf("%s must be %s %s", field, bound, failure.Param)
		case reflect.Slice, reflect.Array:
			return fmt.Sprintf("%s must contain %s %s items", field, bound, failure.Param)
		}
		return fmt.Sprintf("%s must be %s %s characters", field, bound, failure.Param)
	}
	if failure.Param != "" {
		return fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param)
	}
	return fmt.Sprintf("%s failed validation: %s", field, failure.Tag)
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(name)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
