package race

import (
	"fmt"
	"math"
	"math/rand"

	"kart-race/internal/track"
)

// RefereeCaps are what checkpoint, respawn and stealth logic need from
// the orchestrator.
type RefereeCaps struct {
	Player   func() *Vehicle
	RaceTime func() float64
	Tick     func() uint64
	Emit     func(t EventType, v *Vehicle, payload interface{})
	// FinishPosition returns the next finishing place (1-based).
	FinishPosition func() int
	OnCheckpoint   func(v *Vehicle, checkpoint int)
	OnRespawn      func(v *Vehicle, reason RespawnReason)
}

// Referee owns checkpoint progression, laps, finishing, respawn and the
// AI stealth teleport.
type Referee struct {
	track    *track.Track
	tun      *Tunables
	rng      *rand.Rand
	fx       EffectsSink
	msgs     MessageSink
	caps     RefereeCaps
	laps     int
	menuMode bool
}

func NewReferee(t *track.Track, tun *Tunables, rng *rand.Rand, fx EffectsSink, msgs MessageSink, laps int, menuMode bool, caps RefereeCaps) *Referee {
	if laps < 1 {
		laps = 1
	}
	return &Referee{track: t, tun: tun, rng: rng, fx: fx, msgs: msgs, caps: caps, laps: laps, menuMode: menuMode}
}

func (r *Referee) emit(t EventType, v *Vehicle, payload interface{}) {
	if r.caps.Emit != nil {
		r.caps.Emit(t, v, payload)
	}
}

// GlobalProgress is lap-aware distance for ranking. On loops it is anchored
// to the last confirmed checkpoint, so a vehicle waiting behind the start
// line ranks below one just past it.
func (r *Referee) GlobalProgress(v *Vehicle) float64 {
	t := r.track
	if !t.Loop {
		return v.Progress
	}
	cp := t.Checkpoints[v.Checkpoint]
	return float64(v.Lap)*t.TotalLength + cp.S + t.SignedDelta(cp.S, v.Progress)
}

// Triggered reports whether moving from prev to v.Position passes v's
// next checkpoint. It has no side effects.
func (r *Referee) Triggered(v *Vehicle, prev Vec3) bool {
	t := r.track
	cp := t.Checkpoints[v.NextCheckpoint]

	// (a) path-distance crossing with a small, sane forward step
	step := t.SignedDelta(v.PrevProgress, v.Progress)
	if step > 0 && step < r.tun.CheckpointMaxStep && v.TrackDist < t.HalfWidth*r.tun.CheckpointLateralScale {
		if t.SignedDelta(v.PrevProgress, cp.S) > 0 && t.SignedDelta(v.Progress, cp.S) <= 0 {
			return true
		}
	}

	// (b) segment crosses the gate plane inside the gate width
	before := planar(prev.Sub(cp.Point)).Dot(cp.Forward)
	after := planar(v.Position.Sub(cp.Point)).Dot(cp.Forward)
	if before < 0 && after >= 0 {
		f := before / (before - after)
		cross := prev.Add(v.Position.Sub(prev).Mul(f))
		if math.Abs(planar(cross.Sub(cp.Point)).Dot(cp.Right)) <= cp.GateHalfWidth {
			return true
		}
	}

	// (c) inside the capture zone, any direction
	rel := planar(v.Position.Sub(cp.Point))
	along := rel.Dot(cp.Forward)
	return math.Abs(along) <= cp.CaptureDepth && rel.Len() <= cp.CaptureRadius
}

// UpdateCheckpoints advances v past its next checkpoint when triggered.
// At most one checkpoint is confirmed per vehicle per tick.
func (r *Referee) UpdateCheckpoints(v *Vehicle, prev Vec3) bool {
	if v.Finished || v.Respawning {
		return false
	}
	// stored as tick+1 so the zero value means never
	mark := r.caps.Tick() + 1
	if v.checkpointTick == mark {
		return false
	}
	if !r.Triggered(v, prev) {
		return false
	}
	v.checkpointTick = mark
	r.advance(v)
	return true
}

func (r *Referee) advance(v *Vehicle) {
	t := r.track
	n := len(t.Checkpoints)
	v.Checkpoint = v.NextCheckpoint
	v.MissWarned = false

	if t.Loop {
		v.NextCheckpoint = (v.NextCheckpoint + 1) % n
		if v.Checkpoint == 0 {
			v.Lap++
			r.emit(EventTypeLap, v, CheckpointPayload{Checkpoint: 0, Lap: v.Lap, RaceTime: r.caps.RaceTime()})
			if v.Lap >= r.laps {
				r.finish(v)
				return
			}
			if v.IsPlayer() {
				r.msgs.Show(fmt.Sprintf("Lap %d/%d", v.Lap+1, r.laps), 2)
			}
		}
	} else {
		if v.Checkpoint == n-1 {
			r.finish(v)
			return
		}
		v.NextCheckpoint++
	}

	r.emit(EventTypeCheckpoint, v, CheckpointPayload{Checkpoint: v.Checkpoint, Lap: v.Lap, RaceTime: r.caps.RaceTime()})
	if r.caps.OnCheckpoint != nil {
		r.caps.OnCheckpoint(v, v.Checkpoint)
	}
	if v.IsPlayer() {
		r.fx.Sound("checkpoint", 990)
	}
}

func (r *Referee) finish(v *Vehicle) {
	v.Finished = true
	v.FinishTime = r.caps.RaceTime()
	v.clearControls()
	pos := 0
	if r.caps.FinishPosition != nil {
		pos = r.caps.FinishPosition()
	}
	v.FinishPosition = pos
	r.emit(EventTypeFinish, v, FinishPayload{Position: pos, RaceTime: v.FinishTime})
	if v.IsPlayer() {
		r.msgs.Show(fmt.Sprintf("🏁 Finished P%d in %.2fs", pos, v.FinishTime), 5)
	}
}

// MissedCheckpoint warns the player who has driven past their due
// checkpoint and respawns them there once they are far enough past it.
func (r *Referee) MissedCheckpoint(v *Vehicle) {
	if r.menuMode || v.Finished || v.Respawning || !v.IsPlayer() {
		return
	}
	t := r.track
	cp := t.Checkpoints[v.NextCheckpoint]
	past := t.SignedDelta(cp.S, v.Progress)

	switch {
	case past > r.tun.MissRespawnDistance:
		r.msgs.Show("Missed checkpoint", 2)
		r.RequestRespawn(v, RespawnMissedCheckpoint, v.Checkpoint)
	case past > r.tun.MissWarnDistance && !v.MissWarned:
		v.MissWarned = true
		r.msgs.Show("⚠️ Missed checkpoint! Turn back", 3)
	case v.MissWarned:
		near := planarDistSq(v.Position, cp.Point) < 4*cp.CaptureRadius*cp.CaptureRadius
		if past < r.tun.MissResetDistance || near {
			v.MissWarned = false
		}
	}
}
