// Package validation проверяет структуры запросов по тегам validate
// и переводит нарушения в domain.ValidationError с ключами вида items.0.quantity.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Messages переопределяет текст ошибки для пары "поле.тег".
// Индексы коллекций в ключе заменяются на "*": "items.*.quantity.min".
type Messages map[string]string

var (
	instance *validator.Validate
	once     sync.Once

	indexPattern = regexp.MustCompile(`\[(\d+)\]`)
	digitSegment = regexp.MustCompile(`\.\d+(\.|$)`)
)

func engine() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return instance
}

// Struct проверяет v и возвращает *domain.ValidationError либо nil.
func Struct(v any, messages Messages) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("validate request: %w", err)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	fields := domain.FieldErrors{}
	for _, fe := range fieldErrs {
		path := fieldPath(fe.Namespace())
		fields.Add(path, message(path, fe, messages))
	}
	return &domain.ValidationError{Fields: fields}
}

// fieldPath превращает "CreateOrderRequest.items[0].quantity" в "items.0.quantity".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		namespace = namespace[idx+1:]
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

func wildcard(path string) string {
	for digitSegment.MatchString(path) {
		path = digitSegment.ReplaceAllString(path, ".*$1")
	}
	return path
}

func message(path string, fe validator.FieldError, messages Messages) string {
	if msg, ok := messages[wildcard(path)+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := messages[path+"."+fe.Tag()]; ok {
		return msg
	}

	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s must be at least %s characters.", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("The %s must have at least %s items.", field, fe.Param())
		}
		return fmt.Sprintf("The %s must be at least %s.", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s may not be greater than %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s may not be greater than %s.", field, fe.Param())
	case "gt":
		return fmt.Sprintf("The %s must be greater than %s.", field, fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match.", field)
	default:
		return fmt.Sprintf("The %s is invalid.", field)
	}
}
