package race

import (
	"math"

	"github.com/rs/zerolog/log"
)

const (
	StuckProgressEpsilon = 0.02 // metres of path progress per tick
	StuckSpeed           = 1.0
	EscapeProgress       = 3.0 // forward progress that ends an escape
	EscapeClearSpeed     = 4.0
	escapePhases         = 3
)

// UpdateStuck watches AI progress. A vehicle that makes no progress for
// StuckThreshold seconds escalates through escape phases; if it is still
// stuck when the escape window closes it is respawned.
func (d *Driver) UpdateStuck(v *Vehicle, dt float64) {
	if d.menuMode || !v.Active() || v.IsRemote() || v.Down != KnockNone {
		return
	}
	if _, ok := v.Profile(); !ok {
		return
	}
	if d.caps.RaceTime() < d.tun.StuckGrace {
		return
	}

	delta := math.Abs(d.track.SignedDelta(v.PrevProgress, v.Progress))
	speed := v.PlanarSpeed()
	ai := &v.AI

	if ai.EscapePhase == 0 {
		if delta < StuckProgressEpsilon && speed < StuckSpeed {
			ai.StuckTime += dt
		} else {
			ai.StuckTime = math.Max(0, ai.StuckTime-2*dt)
		}
		if ai.StuckTime >= d.tun.StuckThreshold {
			d.beginEscape(v)
		}
		return
	}

	ai.EscapeElapsed += dt
	ai.EscapeTimer -= dt
	if speed > EscapeClearSpeed && d.track.SignedDelta(ai.EscapeStart, v.Progress) > EscapeProgress {
		log.Debug().Str("vehicle", v.ID).Int("phase", ai.EscapePhase).Msg("🚗 Stuck escape succeeded")
		d.resetStuck(v)
		return
	}
	if ai.EscapeElapsed >= d.tun.StuckEscapeWindow {
		log.Debug().Str("vehicle", v.ID).Msg("🧱 Stuck escape failed, respawning")
		d.resetStuck(v)
		if d.caps.Respawn != nil {
			d.caps.Respawn(v, RespawnStuck, -1)
		}
		return
	}
	if ai.EscapeTimer <= 0 && ai.EscapePhase < escapePhases {
		ai.EscapePhase++
		ai.EscapeTimer = d.tun.EscapePhaseTime
		if ai.EscapePhase == escapePhases {
			ai.EscapeSide = d.randomSide()
		}
		d.emit(EventTypeStuckEscape, v, StuckPayload{Phase: ai.EscapePhase})
	}
}

func (d *Driver) beginEscape(v *Vehicle) {
	ai := &v.AI
	ai.EscapePhase = 1
	ai.EscapeTimer = d.tun.EscapePhaseTime
	ai.EscapeElapsed = 0
	ai.EscapeSide = d.randomSide()
	ai.EscapeStart = v.Progress
	d.emit(EventTypeStuckEscape, v, StuckPayload{Phase: 1})
}

func (d *Driver) resetStuck(v *Vehicle) {
	v.AI.StuckTime = 0
	v.AI.EscapePhase = 0
	v.AI.EscapeTimer = 0
	v.AI.EscapeElapsed = 0
	v.Mode = DriveForward
}

func (d *Driver) randomSide() float64 {
	if d.rng.Intn(2) == 0 {
		return -1
	}
	return 1
}

func (d *Driver) emit(t EventType, v *Vehicle, payload interface{}) {
	if d.caps.Emit != nil {
		d.caps.Emit(t, v, payload)
	}
}

// escapeControl drives the current escape phase: reverse while steering
// one way, reverse steering the other way, then full throttle forward
// toward a random side.
func (d *Driver) escapeControl(v *Vehicle) {
	ai := &v.AI
	v.Brake = 0
	switch ai.EscapePhase {
	case 1:
		v.Mode = DriveReverse
		v.Throttle, v.ReverseThrottle = 0, 1
		v.TargetSteer = ai.EscapeSide
	case 2:
		v.Mode = DriveReverse
		v.Throttle, v.ReverseThrottle = 0, 1
		v.TargetSteer = -ai.EscapeSide
	default:
		v.Mode = DriveForward
		v.Throttle, v.ReverseThrottle = 1, 0
		v.TargetSteer = ai.EscapeSide
	}
}
