package race

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FrameStats describes one real-time frame.
type FrameStats struct {
	Steps   int
	Alpha   float64
	Elapsed time.Duration // wall time spent stepping
}

// Runner drives an Engine in real time: a ticker at the frame rate feeds
// measured frame time into Advance. The Runner's goroutine is the only
// caller of Advance while it runs.
type Runner struct {
	engine   *Engine
	interval time.Duration

	// OnFrame is called on the runner goroutine after every frame.
	OnFrame func(FrameStats)

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewRunner creates a runner for e. frameRate <= 0 uses 60.
func NewRunner(e *Engine, frameRate int) *Runner {
	if frameRate <= 0 {
		frameRate = 60
	}
	return &Runner{
		engine:   e,
		interval: time.Second / time.Duration(frameRate),
	}
}

// Start begins the frame loop. Calling Start on a running Runner is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})

	go r.loop(r.stopChan, r.done)

	log.Info().Dur("frame", r.interval).Float64("tickRate", 1/Dt).Msg("🎮 Race loop started")
}

// Stop ends the frame loop and waits for the current frame to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	done := r.done
	r.mu.Unlock()

	<-done
	log.Info().Uint64("tick", r.engine.Tick()).Msg("🛑 Race loop stopped")
}

// Running reports whether the loop is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Runner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			frame := now.Sub(last).Seconds()
			last = now

			start := time.Now()
			steps, alpha := r.engine.Advance(frame)
			if r.OnFrame != nil {
				r.OnFrame(FrameStats{Steps: steps, Alpha: alpha, Elapsed: time.Since(start)})
			}
		}
	}
}
