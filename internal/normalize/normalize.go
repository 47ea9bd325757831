package normalize

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/JonMunkholm/dohpipeline/internal/record"
)

// State is the fold accumulator: the previously consumed record, or none.
// The zero value is the initial state.
type State struct {
	prev    record.Record
	started bool
}

// Previous returns the last consumed record and whether there is one.
func (s State) Previous() (record.Record, bool) {
	return s.prev, s.started
}

// Step consumes one record and returns the next state together with the
// entities the record introduces:
//   - a restaurant when there is no previous record or the identifier changed
//   - an inspection when the restaurant is new or the inspection date changed
//   - a violation whenever the violation code is non-empty
func Step(s State, r record.Record) (State, Emission) {
	var e Emission

	newRestaurant := !s.started || r.Camis() != s.prev.Camis()
	if newRestaurant {
		rest := restaurantFrom(r)
		e.Restaurant = &rest
	}
	if newRestaurant || r.InspectionDate() != s.prev.InspectionDate() {
		insp := inspectionFrom(r)
		e.Inspection = &insp
	}
	if r.ViolationCode() != "" {
		v := violationFrom(r)
		e.Violation = &v
	}

	return State{prev: r, started: true}, e
}

// Stats counts records scanned and entities emitted.
type Stats struct {
	Scanned     int64 `json:"scanned"`
	Restaurants int64 `json:"restaurants"`
	Inspections int64 `json:"inspections"`
	Violations  int64 `json:"violations"`
}

func (s *Stats) add(e Emission) {
	if e.Restaurant != nil {
		s.Restaurants++
	}
	if e.Inspection != nil {
		s.Inspections++
	}
	if e.Violation != nil {
		s.Violations++
	}
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("scanned", s.Scanned),
		slog.Int64("restaurants", s.Restaurants),
		slog.Int64("inspections", s.Inspections),
		slog.Int64("violations", s.Violations),
	)
}

type options struct {
	check OrderCheck
}

// Option configures Normalize.
type Option func(*options)

// WithOrderCheck selects how the input ordering is verified.
func WithOrderCheck(c OrderCheck) Option {
	return func(o *options) { o.check = c }
}

// Normalize folds Step over records. The returned sequence is lazy and
// single-pass; it yields only non-empty emissions and stops after the first
// error, whether from the source or from the order check. Stats are updated
// as the sequence is consumed.
func Normalize(records iter.Seq2[record.Record, error], opts ...Option) (iter.Seq2[Emission, error], *Stats) {
	o := options{check: OrderCheckStrict}
	for _, opt := range opts {
		opt(&o)
	}

	stats := &Stats{}
	seq := func(yield func(Emission, error) bool) {
		guard := newOrderGuard(o.check)
		var s State

		for r, err := range records {
			if err != nil {
				yield(Emission{}, err)
				return
			}
			stats.Scanned++

			if err := guard.check(stats.Scanned, r); err != nil {
				yield(Emission{}, err)
				return
			}

			var e Emission
			s, e = Step(s, r)
			if e.Empty() {
				continue
			}
			stats.add(e)
			if !yield(e, nil) {
				return
			}
		}
	}
	return seq, stats
}

// RowWriter accepts one stream row at a time.
type RowWriter interface {
	Write(row []string) error
}

// Writers are the destinations of the three entity streams.
type Writers struct {
	Restaurant RowWriter
	Inspection RowWriter
	Violation  RowWriter
}

// WriteStreams drains emissions into w in first-emission order.
func WriteStreams(ctx context.Context, emissions iter.Seq2[Emission, error], w Writers) error {
	var n int
	for e, err := range emissions {
		if err != nil {
			return err
		}
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if e.Restaurant != nil {
			if err := w.Restaurant.Write(e.Restaurant.Row()); err != nil {
				return fmt.Errorf("write restaurant %s: %w", e.Restaurant.Camis, err)
			}
		}
		if e.Inspection != nil {
			if err := w.Inspection.Write(e.Inspection.Row()); err != nil {
				return fmt.Errorf("write inspection %s: %w", e.Inspection.Camis, err)
			}
		}
		if e.Violation != nil {
			if err := w.Violation.Write(e.Violation.Row()); err != nil {
				return fmt.Errorf("write violation %s: %w", e.Violation.Camis, err)
			}
		}
	}
	return ctx.Err()
}
