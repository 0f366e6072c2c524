package riverchat

import (
	"errors"
	"maps"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/putto11262002/riverchat/core"
)

var validate *validator.Validate
var uniTrans *ut.UniversalTranslator

var roomNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

func init() {

	validate = validator.New()
	en := en.New()
	uniTrans = ut.New(en, en)
	enTrans, _ := uniTrans.GetTranslator("en")

	// use the json name when there is one, otherwise lowercase the field name
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return strings.ToLower(field.Name)
		}
		return name
	})

	registerTranslation(enTrans, "hostname", "{0} must be a valid hostname")
	registerTranslation(enTrans, "required", "{0} is a required field")
	registerTranslation(enTrans, "base64", "{0} must be a valid base64 encoded string")
	registerTranslation(enTrans, "max", "{0} must be at most {1}")
	registerTranslation(enTrans, "min", "{0} must be at least {1}")
	registerTranslation(enTrans, "gt", "{0} must be greater than {1}")
	registerTranslation(enTrans, "gte", "{0} must be at least {1}")
	registerTranslation(enTrans, "oneof", "{0} must be one of [{1}]")
	registerTranslation(enTrans, "alphanum", "{0} can only contain letters and numbers")

	validate.RegisterValidation("port", func(fl validator.FieldLevel) bool {
		port, ok := fl.Field().Interface().(int)
		if !ok {
			return false
		}
		return port > 0 && port <= 65535
	})
	registerTranslation(enTrans, "port", "{0} must be a valid port number")

	validate.RegisterValidation("roomname", func(fl validator.FieldLevel) bool {
		return roomNamePattern.MatchString(fl.Field().String())
	})
	registerTranslation(enTrans, "roomname",
		"{0} must be 2 to 64 lowercase letters, digits or dashes and start with a letter or digit")
}

func registerTranslation(trans ut.Translator, tag, text string) {
	validate.RegisterTranslation(tag, trans, func(ut ut.Translator) error {
		return ut.Add(tag, text, true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T(tag, fe.Field(), fe.Param())
		return t
	})
}

// validateInput validates v and turns validation failures into a
// core.ValidationError carrying the translated messages.
func validateInput(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	trans, _ := uniTrans.GetTranslator("en")
	translated := errs.Translate(trans)
	msgs := make([]string, 0, len(translated))
	for _, k := range slices.Sorted(maps.Keys(translated)) {
		msgs = append(msgs, translated[k])
	}
	return core.NewValidationError("%s", strings.Join(msgs, "; "))
}
