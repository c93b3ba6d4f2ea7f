package order

import (
	"github.com/google/btree"
)

// IntervalSet is a set of int64 values stored as maximal runs of
// consecutive integers in a B-tree, so Add, Contains and NextMissing are all
// O(log n) in the number of runs.
type IntervalSet struct {
	tree *btree.BTreeG[span]
}

// span is the closed run [lo, hi].
type span struct {
	lo, hi int64
}

func spanLess(a, b span) bool {
	return a.lo < b.lo
}

func NewIntervalSet() *IntervalSet {
	return &IntervalSet{tree: btree.NewG(8, spanLess)}
}

// floor returns the run with the greatest lo <= x.
func (s *IntervalSet) floor(x int64) (span, bool) {
	var out span
	found := false
	s.tree.DescendLessOrEqual(span{lo: x}, func(it span) bool {
		out, found = it, true
		return false
	})
	return out, found
}

// ceil returns the run with the smallest lo >= x.
func (s *IntervalSet) ceil(x int64) (span, bool) {
	var out span
	found := false
	s.tree.AscendGreaterOrEqual(span{lo: x}, func(it span) bool {
		out, found = it, true
		return false
	})
	return out, found
}

func (s *IntervalSet) Contains(x int64) bool {
	p, ok := s.floor(x)
	return ok && x <= p.hi
}

func (s *IntervalSet) Add(x int64) {
	if s.Contains(x) {
		return
	}
	merged := span{lo: x, hi: x}
	if p, ok := s.floor(x); ok && p.hi+1 == x {
		s.tree.Delete(p)
		merged.lo = p.lo
	}
	if n, ok := s.ceil(x); ok && n.lo == x+1 {
		s.tree.Delete(n)
		merged.hi = n.hi
	}
	s.tree.ReplaceOrInsert(merged)
}

// NextMissing returns the smallest value >= x that is not in the set.
func (s *IntervalSet) NextMissing(x int64) int64 {
	if p, ok := s.floor(x); ok && x <= p.hi {
		return p.hi + 1
	}
	return x
}
