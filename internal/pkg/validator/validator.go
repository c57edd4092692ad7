// Package validator wraps go-playground/validator with English translations and dotted configuration paths in messages.
package validator

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

const nestedName = "__nested__"

type Validation struct {
	Tag  string
	Func validator.Func
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New(rules ...Validation) *Validator {
	validate := validator.New()

	// Register default EN translator
	enLocale := en.New()
	enTranslator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic(errors.New("en translator was not found"))
	}
	if err := enTranslation.RegisterDefaultTranslations(validate, enTranslator); err != nil {
		panic(errors.Errorf("translator was not registered: %w", err))
	}

	// Register custom validation rules
	for _, rule := range rules {
		if err := validate.RegisterValidation(rule.Tag, rule.Func); err != nil {
			panic(err)
		}
	}

	// Use the configuration key in error messages, anonymous and squashed fields are removed from the error namespace.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if fld.Anonymous || fld.Tag.Get("configKey") == ",squash" {
			return nestedName
		}
		for _, tag := range []string{"configKey", "json"} {
			if name, _, _ := strings.Cut(fld.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})

	return &Validator{validate: validate, translator: enTranslator}
}

// Validate validates a struct, a pointer to a struct or a slice of them.
func Validate(ctx context.Context, value any, rules ...Validation) error {
	return New(rules...).Validate(ctx, value)
}

func (v *Validator) Validate(ctx context.Context, value any) error {
	var err error
	if reflect.Indirect(reflect.ValueOf(value)).Kind() == reflect.Struct {
		err = v.validate.StructCtx(ctx, value)
	} else {
		err = v.validate.VarCtx(ctx, value, "dive")
	}

	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.processValidateError(validationErrs)
		}
		return err
	}
	return nil
}

func (v *Validator) processValidateError(err validator.ValidationErrors) error {
	result := errors.NewMultiError()
	for _, e := range err {
		msg := e.Translate(v.translator)
		// Prefix error message by field namespace
		if namespace := processNamespace(e.Namespace()); namespace != "" {
			msg = fmt.Sprintf("%s.%s", namespace, msg)
		}
		result.Append(errors.New(msg))
	}
	return result.ErrorOrNil()
}

// Remove struct name (first part), field name (last part) and __nested__ parts.
func processNamespace(namespace string) string {
	namespace = strings.ReplaceAll(namespace, nestedName+".", ``)
	parts := strings.Split(namespace, ".")
	if len(parts) <= 2 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], ".")
}
