package models

import (
	"unicode/utf8"

	"github.com/xelth-com/wingetpro/internal/apperr"
)

// All returns every model in migration order (parents first).
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&Package{},
		&Version{},
		&Installer{},
	}
}

func invalidf(field, format string, args ...any) error {
	return apperr.Invalid(field, format, args...)
}

// checkLength counts characters, not bytes.
func checkLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min {
		if min == 1 {
			return invalidf(field, "is required")
		}
		return invalidf(field, "must be at least %d characters", min)
	}
	if n > max {
		return invalidf(field, "must be at most %d characters", max)
	}
	return nil
}
