package postings

// Iterator is a pull-based, single-pass source of postings.
//
// Sources feeding a segment build must yield postings in nondecreasing
// (index, field, term, value) order with equal postings adjacent; consumers
// rely on that order but do not re-verify it.
type Iterator interface {
	// Next returns the next posting in the stream. ok is false once the
	// stream is exhausted, and stays false on every later call.
	Next() (p Posting, ok bool)
}

// SliceIterator yields the postings of an in-memory slice in order.
type SliceIterator struct {
	items []Posting
	next  int
}

// NewSliceIterator returns an iterator over items. The slice is not copied;
// callers must not mutate it while iterating.
func NewSliceIterator(items []Posting) *SliceIterator {
	return &SliceIterator{items: items}
}

// Next returns the next posting of the slice.
func (it *SliceIterator) Next() (Posting, bool) {
	if it.next >= len(it.items) {
		return Posting{}, false
	}
	p := it.items[it.next]
	it.next++
	return p, true
}
