package spatial

import (
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridNegativeCoordinates(t *testing.T) {
	g := NewGrid(-100, -100, 100, 100, 10, 16)
	g.Insert(0, -95, -95)
	g.Insert(1, 50, 50)
	g.InsertCircle(2, -5, -5, 12)

	got := g.QueryRadius(-90, -90, 8)
	assert.Contains(t, got, uint32(0))
	assert.NotContains(t, got, uint32(1))

	// the circle spans several cells but is reported once
	got = g.QueryRadius(0, 0, 15)
	count := 0
	for _, id := range got {
		if id == 2 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestGridClampsOutside(t *testing.T) {
	g := NewGrid(0, 0, 50, 50, 10, 4)
	g.Insert(0, 500, -500)
	got := g.QueryRadius(49, 1, 2)
	assert.Equal(t, []uint32{0}, got)

	g.Clear()
	assert.Empty(t, g.QueryRadius(49, 1, 2))
}

func bruteForcePairs(xs []float64, r float64) []Pair {
	var out []Pair
	for i := 0; i < len(xs); i++ {
		for j := i + 1; j < len(xs); j++ {
			d := xs[i] - xs[j]
			if d < 0 {
				d = -d
			}
			if d <= 2*r {
				out = append(out, Pair{A: uint32(i), B: uint32(j)})
			}
		}
	}
	return out
}

func TestSweepAndPruneMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sap := NewSweepAndPrune(32)
	xs := make([]float64, 24)

	for frame := 0; frame < 50; frame++ {
		for i := range xs {
			if frame == 0 {
				xs[i] = rng.Float64() * 100
			} else {
				xs[i] += rng.Float64()*2 - 1
			}
		}
		got := append([]Pair(nil), sap.Update(xs, 1.5, nil)...)
		want := bruteForcePairs(xs, 1.5)
		sort.Slice(want, func(i, j int) bool {
			if want[i].A != want[j].A {
				return want[i].A < want[j].A
			}
			return want[i].B < want[j].B
		})
		require.Equal(t, len(want), len(got), "frame %d", frame)
		if len(want) > 0 {
			assert.Equal(t, want, got)
		}
	}
}

func TestSweepAndPruneSkip(t *testing.T) {
	sap := NewSweepAndPrune(4)
	xs := []float64{0, 0.5, 1}
	pairs := sap.Update(xs, 1, []bool{false, true, false})
	assert.Equal(t, []Pair{{A: 0, B: 2}}, pairs)
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int](3)
	assert.Equal(t, 4, q.Cap())

	for i := 0; i < 4; i++ {
		assert.True(t, q.TryPush(i))
	}
	assert.False(t, q.TryPush(99), "full")

	for i := 0; i < 4; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)

	// slots are reusable after a full lap
	assert.True(t, q.TryPush(7))
	v, ok := q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 500
	q := NewQueue[int](producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !q.TryPush(p*perProducer + i) {
				}
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	buf := make([]int, 64)
	for {
		n := q.DrainTo(buf)
		if n == 0 {
			break
		}
		for _, v := range buf[:n] {
			seen[v] = true
		}
	}
	assert.Len(t, seen, producers*perProducer)
	assert.Equal(t, 0, q.Len())
}

func BenchmarkSweepAndPrune_16(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	xs := make([]float64, 16)
	for i := range xs {
		xs[i] = rng.Float64() * 200
	}
	sap := NewSweepAndPrune(16)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		xs[i%16] += 0.01
		sap.Update(xs, 1.2, nil)
	}
}
