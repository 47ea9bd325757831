package tsv

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestWriter_RoundTrip(t *testing.T) {
	rows := [][]string{
		{"1000", "JOE'S", "MANHATTAN", "", "2021/03/01"},
		{"1001", "TAB\tNAME", "LINE\nBREAK", "CR\r\nLF", ""},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if w.Rows() != 2 {
		t.Errorf("Rows() = %d, want 2", w.Rows())
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("wrote %d lines, want 2: %q", n, buf.String())
	}

	var got [][]string
	for row, err := range NewReader(&buf).All() {
		if err != nil {
			t.Fatalf("All() error = %v", err)
		}
		got = append(got, row)
	}

	if len(got) != 2 {
		t.Fatalf("read %d rows, want 2", len(got))
	}
	if len(got[0]) != 5 || got[0][3] != "" {
		t.Errorf("row 0 = %q, empty field must survive", got[0])
	}
	want := []string{"1001", "TAB NAME", "LINE BREAK", "CR LF", ""}
	for i := range want {
		if got[1][i] != want[i] {
			t.Errorf("row 1 field %d = %q, want %q", i, got[1][i], want[i])
		}
	}
}

func TestReader_CRLF(t *testing.T) {
	r := NewReader(strings.NewReader("a\tb\r\nc\td\r\n"))
	var got [][]string
	for row, err := range r.All() {
		if err != nil {
			t.Fatalf("All() error = %v", err)
		}
		got = append(got, row)
	}
	if len(got) != 2 || got[0][1] != "b" || got[1][1] != "d" {
		t.Errorf("got %q", got)
	}
	if r.Line() != 2 {
		t.Errorf("Line() = %d, want 2", r.Line())
	}
}

func TestReader_LineTooLong(t *testing.T) {
	long := strings.Repeat("x", MaxLineSize+1)
	var gotErr error
	for _, err := range NewReader(strings.NewReader("ok\n" + long + "\n")).All() {
		gotErr = err
	}
	if !errors.Is(gotErr, bufio.ErrTooLong) {
		t.Errorf("error = %v, want bufio.ErrTooLong", gotErr)
	}
}
