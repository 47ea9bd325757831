package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encodings accepted by Open.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

// Decoder returns the decoder for a configured encoding name.
//
// The UTF-8 decoder strips a leading byte order mark and replaces invalid
// sequences with U+FFFD, so files saved by spreadsheet tools stream cleanly.
func Decoder(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(name) {
	case "", EncodingUTF8, "utf8":
		return &encoding.Decoder{Transformer: unicode.BOMOverride(unicode.UTF8.NewDecoder())}, nil
	case EncodingWindows1252, "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported source encoding %q", name)
	}
}

// File is an open source file decoded to UTF-8.
type File struct {
	file    *os.File
	counter *CountingReader
}

// Open opens path and decodes it from the named encoding.
func Open(path, enc string) (*File, error) {
	dec, err := Decoder(enc)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return &File{
		file:    f,
		counter: NewCountingReader(transform.NewReader(f, dec), size),
	}, nil
}

// Read returns decoded bytes.
func (f *File) Read(p []byte) (int, error) { return f.counter.Read(p) }

// Close closes the underlying file.
func (f *File) Close() error { return f.file.Close() }

// BytesRead is the number of decoded bytes returned so far.
func (f *File) BytesRead() int64 { return f.counter.BytesRead }

// Size is the on-disk size of the file.
func (f *File) Size() int64 { return f.counter.Total }

// CountingReader wraps an io.Reader to track bytes read.
// Used for progress reporting while the normalizer streams the file.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // If known (0 if unknown)
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{reader: r, Total: total}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	p := int(r.BytesRead * 100 / r.Total)
	if p > 100 {
		p = 100
	}
	return p
}
