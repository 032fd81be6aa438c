package spatial

import (
	"sort"
)

// SweepAndPrune is a one-axis broad phase over X. Endpoints are kept
// between calls so insertion sort runs near O(n) while bodies move little
// from tick to tick.
type SweepAndPrune struct {
	endpoints  []Endpoint
	pairs      []Pair
	active     []uint32
	useInsSort bool
}

// Endpoint is one end of a body's interval on the sweep axis.
type Endpoint struct {
	Value float64
	ID    uint32
	IsMin bool
}

// Pair is an unordered pair of overlapping intervals, reported once.
type Pair struct {
	A, B uint32
}

func NewSweepAndPrune(maxBodies int) *SweepAndPrune {
	return &SweepAndPrune{
		endpoints:  make([]Endpoint, 0, maxBodies*2),
		pairs:      make([]Pair, 0, maxBodies),
		active:     make([]uint32, 0, maxBodies),
		useInsSort: true,
	}
}

// Update rebuilds intervals [x-r, x+r] for each body and returns every
// overlapping pair exactly once, with A < B. Bodies with skip[i] set are
// left out; skip may be nil. The returned slice is reused.
func (s *SweepAndPrune) Update(xs []float64, radius float64, skip []bool) []Pair {
	s.pairs = s.pairs[:0]

	// reuse the previous order when the body set is unchanged
	if len(s.endpoints) != len(xs)*2 {
		s.endpoints = s.endpoints[:0]
		for i := range xs {
			s.endpoints = append(s.endpoints,
				Endpoint{ID: uint32(i), IsMin: true},
				Endpoint{ID: uint32(i), IsMin: false},
			)
		}
	}
	for i := range s.endpoints {
		ep := &s.endpoints[i]
		if ep.IsMin {
			ep.Value = xs[ep.ID] - radius
		} else {
			ep.Value = xs[ep.ID] + radius
		}
	}

	if s.useInsSort {
		insertionSort(s.endpoints)
	} else {
		sort.SliceStable(s.endpoints, func(i, j int) bool {
			return less(s.endpoints[i], s.endpoints[j])
		})
	}

	s.active = s.active[:0]
	for _, ep := range s.endpoints {
		if skip != nil && skip[ep.ID] {
			continue
		}
		if ep.IsMin {
			for _, other := range s.active {
				a, b := ep.ID, other
				if a > b {
					a, b = b, a
				}
				s.pairs = append(s.pairs, Pair{A: a, B: b})
			}
			s.active = append(s.active, ep.ID)
			continue
		}
		for i, id := range s.active {
			if id == ep.ID {
				s.active[i] = s.active[len(s.active)-1]
				s.active = s.active[:len(s.active)-1]
				break
			}
		}
	}

	// deterministic resolution order
	sort.Slice(s.pairs, func(i, j int) bool {
		if s.pairs[i].A != s.pairs[j].A {
			return s.pairs[i].A < s.pairs[j].A
		}
		return s.pairs[i].B < s.pairs[j].B
	})
	return s.pairs
}

// SetInsertionSort toggles the coherent insertion sort (default on).
func (s *SweepAndPrune) SetInsertionSort(enabled bool) {
	s.useInsSort = enabled
}

// less orders by value; at equal values a start sorts before an end so
// touching intervals count as overlapping.
func less(a, b Endpoint) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.IsMin && !b.IsMin
}

func insertionSort(eps []Endpoint) {
	for i := 1; i < len(eps); i++ {
		key := eps[i]
		j := i - 1
		for j >= 0 && less(key, eps[j]) {
			eps[j+1] = eps[j]
			j--
		}
		eps[j+1] = key
	}
}
