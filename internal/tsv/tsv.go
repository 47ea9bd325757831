// Package tsv reads and writes the tab-separated intermediate entity streams.
//
// One row is one physical line. Tabs and line breaks inside values are
// replaced by a space on write so the column layout can never shift.
package tsv

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strings"
)

// MaxLineSize is the longest line the Reader accepts.
const MaxLineSize = 1 << 20

var sanitizer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

// Writer writes rows as tab-separated lines.
type Writer struct {
	w    *bufio.Writer
	rows int64
}

// NewWriter returns a buffered Writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64*1024)}
}

// Write appends one row.
func (w *Writer) Write(row []string) error {
	for i, v := range row {
		if i > 0 {
			if err := w.w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.w.WriteString(sanitizer.Replace(v)); err != nil {
			return err
		}
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }

// Rows returns the number of rows written.
func (w *Writer) Rows() int64 { return w.rows }

// Reader reads tab-separated rows.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), MaxLineSize)
	return &Reader{sc: sc}
}

// All returns a single-pass sequence of rows. Each row is a fresh slice.
func (r *Reader) All() iter.Seq2[[]string, error] {
	return func(yield func([]string, error) bool) {
		for r.sc.Scan() {
			r.line++
			if !yield(strings.Split(strings.TrimSuffix(r.sc.Text(), "\r"), "\t"), nil) {
				return
			}
		}
		if err := r.sc.Err(); err != nil {
			yield(nil, fmt.Errorf("tsv line %d: %w", r.line+1, err))
		}
	}
}

// Line returns the number of lines read so far.
func (r *Reader) Line() int { return r.line }
