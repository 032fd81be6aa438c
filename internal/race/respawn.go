package race

import (
	"math"

	"github.com/rs/zerolog/log"

	"kart-race/internal/track"
)

// RespawnReason labels why a vehicle was reset.
type RespawnReason uint8

const (
	RespawnOffTrack RespawnReason = iota
	RespawnFell
	RespawnMissedCheckpoint
	RespawnStuck
	RespawnManual
)

func (r RespawnReason) String() string {
	switch r {
	case RespawnOffTrack:
		return "off_track"
	case RespawnFell:
		return "fell"
	case RespawnMissedCheckpoint:
		return "missed_checkpoint"
	case RespawnStuck:
		return "stuck"
	case RespawnManual:
		return "manual"
	default:
		return "unknown"
	}
}

// RespawnReasons lists every reason, for metric label pre-registration.
var RespawnReasons = []RespawnReason{RespawnOffTrack, RespawnFell, RespawnMissedCheckpoint, RespawnStuck, RespawnManual}

const (
	RespawnNudge         = 4.0 // forward speed after placement
	RespawnLateralWeight = 2.0 // lateral distance weight when scoring checkpoints
	respawnLaneFraction  = 0.3
)

// RequestRespawn starts the respawn countdown. forced is a checkpoint index
// to respawn at, or -1 for the nearest eligible checkpoint. A vehicle that
// is already respawning keeps its pending request.
func (r *Referee) RequestRespawn(v *Vehicle, reason RespawnReason, forced int) {
	if v.Respawning || v.Finished {
		return
	}
	if forced >= len(r.track.Checkpoints) {
		forced = len(r.track.Checkpoints) - 1
	}
	v.Respawning = true
	v.Timers.Respawn = r.tun.RespawnDelay
	if v.Timers.Respawn <= 0 {
		v.Timers.Respawn = Dt
	}
	v.ForcedCheckpoint = forced
	v.Respawns++
	v.Velocity = Vec3{}
	v.clearControls()
	v.AI.StuckTime = 0
	v.AI.EscapePhase = 0

	log.Debug().
		Str("vehicle", v.ID).
		Str("reason", reason.String()).
		Int("forced", forced).
		Msg("🔄 Respawn requested")
	if r.caps.OnRespawn != nil {
		r.caps.OnRespawn(v, reason)
	}
	if v.IsPlayer() && reason != RespawnMissedCheckpoint {
		r.msgs.Show("Respawning…", r.tun.RespawnDelay)
	}
	r.emit(EventTypeRespawn, v, RespawnPayload{Reason: reason.String(), Checkpoint: forced, X: v.Position.X(), Z: v.Position.Z()})
}

// AdvanceRespawn completes a respawn once its timer has run out.
func (r *Referee) AdvanceRespawn(v *Vehicle) {
	if !v.Respawning || v.Timers.Respawn > 0 {
		return
	}
	idx := v.ForcedCheckpoint
	if idx < 0 {
		idx = r.nearestCheckpoint(v)
	}
	r.placeAt(v, idx)
}

// nearestCheckpoint scores the checkpoints the vehicle has already
// confirmed by path distance plus weighted lateral offset. The gate still
// owed is not eligible: landing on it would credit it through the capture
// test without driving through it.
func (r *Referee) nearestCheckpoint(v *Vehicle) int {
	t := r.track
	last := min(v.Checkpoint, len(t.Checkpoints)-1)

	best, bestScore := last, math.Inf(1)
	for i := 0; i <= last; i++ {
		cp := t.Checkpoints[i]
		along := math.Abs(t.SignedDelta(cp.S, v.Progress))
		lateral := math.Sqrt(planarDistSq(v.Position, cp.Point))
		if score := along + RespawnLateralWeight*lateral; score < bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// placeAt puts v on checkpoint idx facing down the route and clears
// transient state.
func (r *Referee) placeAt(v *Vehicle, idx int) {
	t := r.track
	cp := t.Checkpoints[idx]

	lane := float64(v.Index%3-1) * respawnLaneFraction * t.HalfWidth
	p := cp.Point.Add(cp.Right.Mul(lane))
	p = Vec3{p.X(), t.HeightAt(p.X(), p.Z()) + GroundClearance, p.Z()}

	v.Position = p
	v.Heading = track.HeadingOf(cp.Forward)
	v.Velocity = cp.Forward.Mul(RespawnNudge)
	v.Pitch, v.Roll, v.Steer = 0, 0, 0
	v.Mode = DriveForward
	v.Grounded = true
	v.InMud = false
	v.Down = KnockNone
	v.Timers.Knockdown = 0
	v.Timers.Recover = 0
	v.Timers.Stun = 0
	v.Timers.ItemHitCooldown = 0
	v.Timers.RampLaunchGrace = 0
	v.Respawning = false
	v.ForcedCheckpoint = -1
	v.MissWarned = false
	v.ReverseHold = 0

	proj := t.ProjectGlobal(p.X(), p.Z())
	v.Progress = proj.S
	v.PrevProgress = proj.S
	v.TrackDist = math.Sqrt(proj.DistSq)
	v.GlobalProgress = r.GlobalProgress(v)

	r.fx.Particles(p, "#ffffff", 16)
	if v.IsPlayer() {
		r.fx.Sound("respawn", 523)
	}
}
