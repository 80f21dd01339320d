package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

var setupOnce sync.Once

// eventIDPattern bounds event ids, which end up in Redis keys and SQL
// parameters.
var eventIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Setup registers the validator with English translations and the custom
// "eventid" tag on Gin's binding engine. Safe to call more than once.
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*govalidator.Validate)
		if !ok {
			return
		}

		// Use JSON tag name for field names in error messages, falling back
		// to the query form name.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("eventid", func(fl govalidator.FieldLevel) bool {
			return eventIDPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterTranslation("eventid", trans,
			func(ut ut.Translator) error {
				return ut.Add("eventid", "{0} may only contain letters, digits, '-' and '_' (max 128)", true)
			},
			func(ut ut.Translator, fe govalidator.FieldError) string {
				msg, _ := ut.T("eventid", fe.Field())
				return msg
			},
		)
	})
}

// TranslateErrors takes a binding/validation error and returns a map of
// field name to human-readable error message. If the error is not a
// validation error, it returns a single-key map with "detail".
func TranslateErrors(err error) map[string]string {
	fields := make(map[string]string)

	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(trans)
		}
		return fields
	}

	// Not a validation error (e.g., JSON syntax error).
	fields["detail"] = err.Error()
	return fields
}

// Validate checks v against its `binding` tags with the same engine Gin uses
// for request bodies. Used for WebSocket messages.
func Validate(v interface{}) error {
	return binding.Validator.ValidateStruct(v)
}
