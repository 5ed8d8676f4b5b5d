package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)
	}
}

// Violation is one translated validation failure.
type Violation struct {
	Field   string
	Message string
}

// Translate turns a binding/validation error into ordered violations. A
// non-validation error (e.g. malformed JSON) becomes a single "detail" entry.
func Translate(err error) []Violation {
	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]Violation, 0, len(ve))
		for _, fe := range ve {
			msg := fe.Error()
			if trans != nil {
				msg = fe.Translate(trans)
			}
			out = append(out, Violation{Field: fe.Field(), Message: msg})
		}
		return out
	}
	return []Violation{{Field: "detail", Message: err.Error()}}
}

// Bind binds and validates the request body into dst. On failure it returns
// the first violation message and the full field map.
func Bind(c *gin.Context, dst interface{}) (string, map[string]string) {
	if err := c.ShouldBindJSON(dst); err != nil {
		violations := Translate(err)
		fields := make(map[string]string, len(violations))
		for _, v := range violations {
			fields[v.Field] = v.Message
		}
		return violations[0].Message, fields
	}
	return "", nil
}
