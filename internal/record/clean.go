package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSchemaMismatch means a line did not split into FieldCount fields.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrCleaningAmbiguity means a non-empty DATE value had no MM/DD/YYYY shape.
	ErrCleaningAmbiguity = errors.New("cleaning ambiguity")
)

// Clean applies the per-field rules to one raw value:
// trim, substitute the default for empty values, run the field normalizer,
// then reorder DATE values from MM/DD/YYYY to YYYY/MM/DD.
//
// Empty values never reach type handling, so an absent score or date stays
// empty instead of failing.
func Clean(spec FieldSpec, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return spec.Default, nil
	}

	if spec.Normalizer != nil {
		v = spec.Normalizer(v)
	}

	if spec.Type == FieldDate {
		return reformatDate(v)
	}
	return v, nil
}

// reformatDate reorders the parts of a slash date without calendar checks.
func reformatDate(v string) (string, error) {
	parts := strings.Split(v, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: date %q does not have three '/' separated parts", ErrCleaningAmbiguity, v)
	}
	return parts[2] + "/" + parts[0] + "/" + parts[1], nil
}
