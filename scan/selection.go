package scan

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// SelectionVector marks which rows of one batch are logically selected.
// Row indexes are relative to the batch, not rowset ordinals.
type SelectionVector struct {
	bm *roaring.Bitmap
	n  int
}

// NewSelectionVector creates a selection vector for a batch of n rows, with
// no rows selected.
func NewSelectionVector(n int) *SelectionVector {
	return &SelectionVector{bm: roaring.New(), n: n}
}

// Resize clears the vector and sets the batch size to n.
func (sv *SelectionVector) Resize(n int) {
	sv.bm.Clear()
	sv.n = n
}

// Len returns the batch size.
func (sv *SelectionVector) Len() int { return sv.n }

// SetAllTrue selects every row in the batch.
func (sv *SelectionVector) SetAllTrue() {
	sv.bm.Clear()
	if sv.n > 0 {
		sv.bm.AddRange(0, uint64(sv.n))
	}
}

// Select marks row i as selected.
func (sv *SelectionVector) Select(i int) {
	sv.bm.Add(uint32(i))
}

// Unselect marks row i as not selected.
func (sv *SelectionVector) Unselect(i int) {
	sv.bm.Remove(uint32(i))
}

// IsRowSelected reports whether row i is selected.
func (sv *SelectionVector) IsRowSelected(i int) bool {
	return sv.bm.Contains(uint32(i))
}

// CountSelected returns the number of selected rows.
func (sv *SelectionVector) CountSelected() int {
	return int(sv.bm.GetCardinality())
}

// AnySelected reports whether at least one row is selected.
func (sv *SelectionVector) AnySelected() bool {
	return !sv.bm.IsEmpty()
}
