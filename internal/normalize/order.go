package normalize

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dohpipeline/internal/record"
)

// ErrUnsortedInput means the input is not grouped by identifier and date.
var ErrUnsortedInput = errors.New("unsorted input")

// OrderCheck selects how strictly the input ordering is verified.
type OrderCheck int

const (
	// OrderCheckStrict requires non-decreasing identifiers and each
	// (identifier, date) pair to form one contiguous run.
	OrderCheckStrict OrderCheck = iota
	// OrderCheckIdentifier requires only non-decreasing identifiers.
	OrderCheckIdentifier
	// OrderCheckOff trusts the input. Unsorted input yields duplicate entities.
	OrderCheckOff
)

func (c OrderCheck) String() string {
	switch c {
	case OrderCheckIdentifier:
		return "identifier"
	case OrderCheckOff:
		return "off"
	default:
		return "strict"
	}
}

// ParseOrderCheck parses "strict", "identifier" or "off".
func ParseOrderCheck(s string) (OrderCheck, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return OrderCheckStrict, nil
	case "identifier":
		return OrderCheckIdentifier, nil
	case "off":
		return OrderCheckOff, nil
	}
	return OrderCheckStrict, fmt.Errorf("unknown order check %q", s)
}

// UnsortedError reports the record that broke the ordering.
type UnsortedError struct {
	Record         int64 // 1-based position in the record stream
	Camis          string
	Previous       string // identifier of the preceding record
	InspectionDate string
}

func (e *UnsortedError) Error() string {
	if e.InspectionDate != "" {
		return fmt.Sprintf("%s: record %d: camis %s date %s reappears after a different date",
			ErrUnsortedInput, e.Record, e.Camis, e.InspectionDate)
	}
	return fmt.Sprintf("%s: record %d: camis %s follows camis %s",
		ErrUnsortedInput, e.Record, e.Camis, e.Previous)
}

func (e *UnsortedError) Unwrap() error { return ErrUnsortedInput }

// compareCamis orders identifiers numerically when both are integers and
// lexically otherwise.
func compareCamis(a, b string) int {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(x, y)
	}
	return strings.Compare(a, b)
}

// orderGuard checks identifiers against the previous one only. In strict
// mode it also remembers the dates seen for the current identifier, in
// either sort direction; that set is reset on every identifier change.
type orderGuard struct {
	mode    OrderCheck
	started bool
	camis   string
	date    string
	dates   map[string]struct{}
}

func newOrderGuard(mode OrderCheck) *orderGuard {
	return &orderGuard{mode: mode, dates: make(map[string]struct{})}
}

func (g *orderGuard) check(n int64, r record.Record) error {
	if g.mode == OrderCheckOff {
		return nil
	}

	camis, date := r.Camis(), r.InspectionDate()
	if !g.started || camis != g.camis {
		if g.started && compareCamis(camis, g.camis) < 0 {
			return &UnsortedError{Record: n, Camis: camis, Previous: g.camis}
		}
		g.started = true
		g.camis, g.date = camis, date
		clear(g.dates)
		g.dates[date] = struct{}{}
		return nil
	}

	if g.mode != OrderCheckStrict || date == g.date {
		return nil
	}
	if _, ok := g.dates[date]; ok {
		return &UnsortedError{Record: n, Camis: camis, Previous: g.camis, InspectionDate: date}
	}
	g.dates[date] = struct{}{}
	g.date = date
	return nil
}
