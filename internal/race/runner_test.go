package race

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestRunnerAdvancesInRealTime runs the loop briefly and checks the engine
// moved forward and frames were reported.
func TestRunnerAdvancesInRealTime(t *testing.T) {
	e, _ := newTestEngine(t, straightTrack(t), nil)
	r := NewRunner(e, 120)

	var frames, steps atomic.Int64
	r.OnFrame = func(s FrameStats) {
		frames.Add(1)
		steps.Add(int64(s.Steps))
		assert.LessOrEqual(t, s.Steps, DefaultMaxSteps)
	}

	r.Start()
	r.Start() // no-op
	assert.True(t, r.Running())
	assert.Eventually(t, func() bool { return steps.Load() >= 10 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop() // no-op

	assert.False(t, r.Running())
	assert.Greater(t, frames.Load(), int64(0))
	assert.Equal(t, uint64(steps.Load()), e.Tick())
	assert.Equal(t, e.Tick(), e.Snapshot().Tick)
}

func TestRunnerDefaultFrameRate(t *testing.T) {
	e, _ := newTestEngine(t, straightTrack(t), nil)
	r := NewRunner(e, 0)
	assert.Equal(t, time.Second/60, r.interval)
}
