package validator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/samber/lo"
)

// ErrTranslatorNotFound is returned when the English translator cannot be built.
var ErrTranslatorNotFound = errors.New("validator: english translator not found")

// patternRules are the step-up specific tags on top of the built-in ones.
var patternRules = []struct {
	tag string
	re  *regexp.Regexp
	msg string
}{
	{tag: "otpcode", re: regexp.MustCompile(`^[0-9]{6}$`), msg: "{0} must be exactly 6 digits"},
	{tag: "permission", re: regexp.MustCompile(`^[a-z*][a-z0-9_*]*:[a-z*][a-z0-9_*]*$`), msg: "{0} must have the form object:action"},
}

// V10Validator is a Validator backed by go-playground/validator with English
// messages.
type V10Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// V10ValidationError maps snake_case field names to messages.
type V10ValidationError map[string]string

func (vs V10ValidationError) Error() string {
	b, err := json.Marshal(map[string]string(vs))
	if err != nil || len(vs) == 0 {
		return "validation error"
	}
	return string(b)
}

// Values returns vs as a plain map for the error envelope.
func (vs V10ValidationError) Values() map[string]string {
	return vs
}

func NewV10Validator() (*V10Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	trans, ok := ut.New(english, english).GetTranslator("en")
	if !ok {
		return nil, ErrTranslatorNotFound
	}
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}
	if err := registerPatternRules(validate, trans); err != nil {
		return nil, err
	}

	return &V10Validator{validate: validate, translator: trans}, nil
}

// Validate returns a V10ValidationError when data breaks a rule.
func (v *V10Validator) Validate(data any) error {
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(V10ValidationError, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[lo.SnakeCase(fe.Field())] = fe.Translate(v.translator)
	}
	return out
}

func registerPatternRules(validate *validator.Validate, trans ut.Translator) error {
	for _, rule := range patternRules {
		re := rule.re
		if err := validate.RegisterValidation(rule.tag, func(fl validator.FieldLevel) bool {
			s, ok := fl.Field().Interface().(string)
			return ok && re.MatchString(s)
		}); err != nil {
			return err
		}

		msg := rule.msg
		tag := rule.tag
		if err := validate.RegisterTranslation(tag, trans,
			func(t ut.Translator) error { return t.Add(tag, msg, false) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, err := t.T(fe.Tag(), fe.Field())
				if err != nil {
					slog.Warn("failed to translate validation message", "tag", fe.Tag(), "error", err)
					return fe.Error()
				}
				return s
			},
		); err != nil {
			return err
		}
	}
	return nil
}
