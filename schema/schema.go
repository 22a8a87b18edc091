package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrNoColumns is returned when a schema is created without columns.
	ErrNoColumns = errors.New("schema: at least one column is required")
	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("schema: duplicate column name")
	// ErrInvalidKeyCount is returned when the key prefix length is out of range.
	ErrInvalidKeyCount = errors.New("schema: key column count out of range")
)

// ErrColumnNotFound indicates a projection references a column the base
// schema does not contain.
type ErrColumnNotFound struct {
	Name string
}

func (e *ErrColumnNotFound) Error() string {
	return fmt.Sprintf("schema: column %q not found", e.Name)
}

// ColumnSchema describes a single column.
type ColumnSchema struct {
	Name string
	Type DataType
}

// Schema is an ordered list of columns. The first NumKeyColumns columns form
// the key prefix; rows in a rowset are sorted ascending by that prefix.
// A Schema is immutable once created and safe for concurrent use.
type Schema struct {
	cols    []ColumnSchema
	byName  map[string]int
	numKeys int
}

// New creates a schema from the given columns; the first numKeyColumns
// columns form the key.
func New(cols []ColumnSchema, numKeyColumns int) (*Schema, error) {
	if len(cols) == 0 {
		return nil, ErrNoColumns
	}
	if numKeyColumns < 1 || numKeyColumns > len(cols) {
		return nil, ErrInvalidKeyCount
	}
	byName := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, ok := byName[c.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		byName[c.Name] = i
	}
	return &Schema{
		cols:    append([]ColumnSchema(nil), cols...),
		byName:  byName,
		numKeys: numKeyColumns,
	}, nil
}

// MustNew is like New but panics on error. Intended for fixed schemas in
// tests and examples.
func MustNew(cols []ColumnSchema, numKeyColumns int) *Schema {
	s, err := New(cols, numKeyColumns)
	if err != nil {
		panic(err)
	}
	return s
}

// NumColumns returns the number of columns.
func (s *Schema) NumColumns() int { return len(s.cols) }

// NumKeyColumns returns the length of the key prefix.
func (s *Schema) NumKeyColumns() int { return s.numKeys }

// Column returns the column at position idx.
func (s *Schema) Column(idx int) ColumnSchema { return s.cols[idx] }

// Columns returns the columns in schema order. The returned slice must not
// be modified.
func (s *Schema) Columns() []ColumnSchema { return s.cols }

// ColumnIndex returns the position of the named column, or -1 if absent.
func (s *Schema) ColumnIndex(name string) int {
	if i, ok := s.byName[name]; ok {
		return i
	}
	return -1
}

// IsKeyColumn reports whether the column at idx is part of the key prefix.
func (s *Schema) IsKeyColumn(idx int) bool { return idx >= 0 && idx < s.numKeys }

// Project returns a schema containing the named columns, in the given order.
func (s *Schema) Project(names ...string) (*Schema, error) {
	cols := make([]ColumnSchema, 0, len(names))
	for _, n := range names {
		i := s.ColumnIndex(n)
		if i < 0 {
			return nil, &ErrColumnNotFound{Name: n}
		}
		cols = append(cols, s.cols[i])
	}
	// Key designation is meaningless on a projection; keep a single-column
	// prefix so the schema stays valid.
	return New(cols, 1)
}

// ProjectionMapping maps each column of projection to its position in s.
// It fails if any projected column is missing from s.
func (s *Schema) ProjectionMapping(projection *Schema) ([]int, error) {
	mapping := make([]int, projection.NumColumns())
	for i, c := range projection.Columns() {
		j := s.ColumnIndex(c.Name)
		if j < 0 {
			return nil, &ErrColumnNotFound{Name: c.Name}
		}
		if s.cols[j].Type != c.Type {
			return nil, fmt.Errorf("schema: column %q type mismatch: base %s, projection %s",
				c.Name, s.cols[j].Type, c.Type)
		}
		mapping[i] = j
	}
	return mapping, nil
}
