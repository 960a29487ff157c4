package cliff

// LoadIterator replays a fixed list of values. It is not adaptive and ignores overloads.
type LoadIterator struct {
	values []uint64
	next   int
}

func NewLoadIterator(values []uint64) *LoadIterator {
	return &LoadIterator{values: append([]uint64(nil), values...)}
}

func (it *LoadIterator) Next() (uint64, bool) {
	if it.next >= len(it.values) {
		return 0, false
	}
	v := it.values[it.next]
	it.next++
	return v, true
}

func (it *LoadIterator) Overloaded() {}
