package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/techstore/storefront/internal/service/auth"
)

const invalidDataMessage = "Datos inválidos"

var registerValidatorsOnce sync.Once

// registerValidators настраивает валидатор gin: имена полей берутся из json-тегов,
// decimal.Decimal проверяется как число, strongpassword требует символы разных классов.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("strongpassword", func(fl validator.FieldLevel) bool {
			return auth.ValidatePassword(fl.Field().String()) == nil
		})
	})
}

// bindJSON разбирает тело запроса; при нарушении схемы отвечает 422 со списком сообщений.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		failure(c, http.StatusUnprocessableEntity, invalidDataMessage, describeBindError(err))
		return false
	}
	return true
}

func describeBindError(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, describeFieldError(fe))
	}
	return messages
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("El campo %s es obligatorio", field)
	case "email":
		return "Email inválido"
	case "strongpassword":
		return "Debe incluir mayúscula, minúscula y número"
	case "min":
		switch fe.Kind() {
		case reflect.String:
			return fmt.Sprintf("%s debe tener al menos %s caracteres", field, fe.Param())
		case reflect.Slice, reflect.Array:
			return fmt.Sprintf("%s debe contener al menos %s elementos", field, fe.Param())
		default:
			return fmt.Sprintf("%s debe ser al menos %s", field, fe.Param())
		}
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s debe tener como máximo %s caracteres", field, fe.Param())
		}
		return fmt.Sprintf("%s debe ser como máximo %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s debe ser mayor que %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s debe ser uno de: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "uuid", "uuid4":
		return fmt.Sprintf("%s debe ser un UUID válido", field)
	case "url":
		return fmt.Sprintf("%s debe ser una URL válida", field)
	default:
		return fmt.Sprintf("%s no es válido", field)
	}
}
