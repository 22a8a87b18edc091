// Package scan holds the caller-facing scan inputs: the mutable predicate
// specification handed to an iterator, and the per-batch selection vector.
package scan

import (
	"fmt"
	"strings"

	"github.com/mathsigit/kudu/schema"
)

// ColumnRangePredicate restricts one column to a value range. A nil bound
// is unbounded on that side; equality is expressed as equal inclusive
// bounds.
type ColumnRangePredicate struct {
	Column string

	Lower          *schema.Datum
	LowerInclusive bool
	Upper          *schema.Datum
	UpperInclusive bool
}

// Equality creates an equality predicate on column.
func Equality(column string, value schema.Datum) ColumnRangePredicate {
	return ColumnRangePredicate{
		Column: column,
		Lower:  &value, LowerInclusive: true,
		Upper: &value, UpperInclusive: true,
	}
}

// Range creates a range predicate; either bound may be nil.
func Range(column string, lower *schema.Datum, lowerInclusive bool, upper *schema.Datum, upperInclusive bool) ColumnRangePredicate {
	return ColumnRangePredicate{
		Column: column,
		Lower:  lower, LowerInclusive: lowerInclusive,
		Upper: upper, UpperInclusive: upperInclusive,
	}
}

// IsEquality reports whether the predicate pins the column to one value.
func (p ColumnRangePredicate) IsEquality() bool {
	return p.Lower != nil && p.Upper != nil &&
		p.LowerInclusive && p.UpperInclusive &&
		p.Lower.Compare(*p.Upper) == 0
}

func (p ColumnRangePredicate) String() string {
	var sb strings.Builder
	if p.Lower != nil {
		op := ">"
		if p.LowerInclusive {
			op = ">="
		}
		fmt.Fprintf(&sb, "%s %s %s", p.Column, op, *p.Lower)
	}
	if p.Upper != nil {
		if sb.Len() > 0 {
			sb.WriteString(" AND ")
		}
		op := "<"
		if p.UpperInclusive {
			op = "<="
		}
		fmt.Fprintf(&sb, "%s %s %s", p.Column, op, *p.Upper)
	}
	if sb.Len() == 0 {
		return p.Column + ": unbounded"
	}
	return sb.String()
}

// Spec is a mutable container of predicates for one scan. An iterator may
// inspect the predicates and remove any it enforces structurally; whatever
// remains must be applied row-by-row by the caller.
type Spec struct {
	preds []ColumnRangePredicate
}

// NewSpec creates a spec with the given predicates.
func NewSpec(preds ...ColumnRangePredicate) *Spec {
	return &Spec{preds: preds}
}

// AddPredicate appends a predicate.
func (s *Spec) AddPredicate(p ColumnRangePredicate) {
	s.preds = append(s.preds, p)
}

// Predicates returns the remaining predicates. The returned slice must not
// be modified; use RemovePredicate.
func (s *Spec) Predicates() []ColumnRangePredicate {
	return s.preds
}

// RemovePredicate removes the predicate at position i.
func (s *Spec) RemovePredicate(i int) {
	s.preds = append(s.preds[:i], s.preds[i+1:]...)
}
