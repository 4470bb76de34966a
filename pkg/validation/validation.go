package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	appErrors "github.com/noah-isme/attendance-approval-api/pkg/errors"
)

var (
	once     sync.Once
	shared   *validator.Validate
	english  ut.Translator
	setupErr error
)

// New returns the shared validator configured to report JSON field names with English messages.
func New() *validator.Validate {
	once.Do(func() {
		v := validator.New()
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
		locale := en.New()
		uni := ut.New(locale, locale)
		english, _ = uni.GetTranslator("en")
		setupErr = enTranslations.RegisterDefaultTranslations(v, english)
		shared = v
	})
	return shared
}

// Fields maps each failing field to a human readable message.
// Errors that are not validation failures are reported under "detail".
func Fields(err error) map[string]string {
	if err == nil {
		return nil
	}
	New()
	fields := make(map[string]string)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && setupErr == nil {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(english)
		}
		return fields
	}
	fields["detail"] = err.Error()
	return fields
}

// Message flattens Fields into a single deterministic sentence.
func Message(err error) string {
	fields := Fields(err)
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}

// Error converts a validation failure into a VALIDATION_ERROR carrying per-field details.
func Error(err error) *appErrors.Error {
	if err == nil {
		return nil
	}
	appErr := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, Message(err))
	return appErr.WithDetails(Fields(err))
}
