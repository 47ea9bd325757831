package record

import (
	"encoding/csv"
	"fmt"
	"strings"
)

// Record is one cleaned source line. It is a value type; copies are independent.
type Record [FieldCount]string

// Get returns the cleaned value of f.
func (r Record) Get(f Field) string { return r[f] }

func (r Record) Camis() string          { return r[Camis] }
func (r Record) InspectionDate() string { return r[InspectionDate] }
func (r Record) ViolationCode() string  { return r[ViolationCode] }
func (r Record) Grade() string          { return r[Grade] }

// ParseError locates a parse or cleaning failure in the source.
type ParseError struct {
	Line  int    // 1-based source line, 0 when unknown
	Field string // schema field name, empty for arity errors
	Err   error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, "field %s: ", e.Field)
	}
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse builds a cleaned record from exactly FieldCount raw fields.
func Parse(fields []string) (Record, error) {
	var r Record
	if len(fields) != FieldCount {
		return r, &ParseError{
			Err: fmt.Errorf("%w: got %d fields, want %d", ErrSchemaMismatch, len(fields), FieldCount),
		}
	}

	for i, raw := range fields {
		v, err := Clean(Schema[i], raw)
		if err != nil {
			return Record{}, &ParseError{Field: Schema[i].Name, Err: err}
		}
		r[i] = v
	}
	return r, nil
}

// ParseLine splits one comma-delimited line, honoring quoted fields, and parses it.
func ParseLine(line string) (Record, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	fields, err := cr.Read()
	if err != nil {
		return Record{}, &ParseError{Line: 1, Err: fmt.Errorf("%w: %v", ErrSchemaMismatch, err)}
	}
	return Parse(fields)
}
