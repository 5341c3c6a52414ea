package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

var (
	// custom validation tags & texts
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderText  = "only alphanumeric characters and underscores are allowed"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	finiteTag  = "finite"
	finiteText = "{0} must be a finite number"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// Validator validates structs and reports failures as a *ValidationError with translated field messages.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator wraps `validate` and registers the global custom validators on it.
func NewValidator(validate *validator.Validate, translator ut.Translator) *Validator {
	v := &Validator{validate: validate, translator: translator}
	v.init()
	return v
}

// NewDefaultValidator is NewValidator with a fresh validator.Validate and the english translator.
func NewDefaultValidator() *Validator {
	return NewValidator(validator.New(), NewTranslator())
}

func (v *Validator) init() {
	_ = en_translations.RegisterDefaultTranslations(v.validate, v.translator)

	// Use JSON tag names for errors instead of Go struct names.
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = v.validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	v.RegisterTranslation(alphaNumUnderTag, alphaNumUnderText)

	_ = v.validate.RegisterValidation(finiteTag, finiteValidation)
	v.RegisterTranslation(finiteTag, finiteText)

	v.RegisterTranslation(requiredTag, requiredText, true)
	v.RegisterTranslation(requiredWithTag, requiredText, true)
}

// Engine exposes the underlying validator so domain packages can register their own rules.
func (v *Validator) Engine() *validator.Validate { return v.validate }

func (v *Validator) Translator() ut.Translator { return v.translator }

// RegisterTranslation registers a custom translation for the specified validation tag.
// `text` may reference the field name with {0}.
func (v *Validator) RegisterTranslation(tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = v.validate.RegisterTranslation(
		tag, v.translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Struct validates `s`. Field failures are returned as a *ValidationError.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return errors.Wrap(err, "validating struct")
	}
	return v.toValidationError(vErrs)
}

func (v *Validator) toValidationError(vErrs validator.ValidationErrors) error {
	flds := make([]FieldError, 0, len(vErrs))
	for _, fe := range vErrs {
		flds = append(flds, FieldError{Field: fieldPath(fe), Error: fe.Translate(v.translator)})
	}
	return NewValidationError(errors.New("invalid input"), flds...)
}

// fieldPath drops the root struct name from the field namespace: NewComponent.graders[0].weight -> graders[0].weight
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}

// finiteValidation rejects NaN and infinite floats.
func finiteValidation(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		return IsFinite(fl.Field().Float())
	}
	return true
}
