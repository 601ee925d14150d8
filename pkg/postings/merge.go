package postings

// MergeIterator merges several sorted posting streams into one globally
// sorted stream. Ties go to the earliest source, so postings that are equal
// across sources come out adjacent and downstream consecutive-duplicate
// elimination sees them side by side.
//
// Each source must itself satisfy the Iterator ordering contract.
type MergeIterator struct {
	sources []Iterator
	heads   []Posting
	live    []bool
}

// NewMergeIterator returns an iterator over the merged sources. Sources may
// be empty; a MergeIterator over no sources is immediately exhausted.
func NewMergeIterator(sources []Iterator) *MergeIterator {
	m := &MergeIterator{
		sources: sources,
		heads:   make([]Posting, len(sources)),
		live:    make([]bool, len(sources)),
	}
	for i, src := range sources {
		m.heads[i], m.live[i] = src.Next()
	}
	return m
}

// Next returns the smallest pending posting across all sources.
func (m *MergeIterator) Next() (Posting, bool) {
	best := -1
	for i := range m.sources {
		if !m.live[i] {
			continue
		}
		if best < 0 || Compare(m.heads[i], m.heads[best]) < 0 {
			best = i
		}
	}
	if best < 0 {
		return Posting{}, false
	}
	p := m.heads[best]
	m.heads[best], m.live[best] = m.sources[best].Next()
	return p, true
}
