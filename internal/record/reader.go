package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
)

// Reader streams cleaned records from a CSV source whose first line is a header.
type Reader struct {
	cr     *csv.Reader
	header []string
	lines  int
}

// NewReader wraps r. Field counts are checked per line by Parse, not by the CSV layer.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return &Reader{cr: cr}
}

// All returns a single-pass sequence of records. The sequence stops after
// the first error; a malformed line is never skipped.
func (r *Reader) All() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if r.header == nil {
			h, err := r.cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, fmt.Errorf("read header: %w", err))
				return
			}
			r.header = append([]string(nil), h...)
		}

		for {
			fields, err := r.cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			r.lines++
			if err != nil {
				yield(Record{}, fmt.Errorf("read line %d: %w", r.lines+1, err))
				return
			}

			line, _ := r.cr.FieldPos(0)
			rec, err := Parse(fields)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					pe.Line = line
				}
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
