package race

import (
	"math"

	"github.com/rs/zerolog/log"

	"kart-race/internal/track"
)

const (
	stealthViewRange   = 120.0
	stealthViewCone    = 0.7 // lateral/ahead ratio the player can see
	stealthJitter      = 15.0
	stealthMinSpeed    = 12.0
	stealthSpeedFactor = 0.85
)

// UpdateStealth lets an AI that has trailed the player by a large gap for
// long enough jump to a point behind the player, out of the player's view.
func (r *Referee) UpdateStealth(v *Vehicle, dt float64) {
	if r.menuMode || v.IsPlayer() || v.IsRemote() || !v.Active() {
		return
	}
	player := r.caps.Player()
	if player == nil || player.Finished || r.caps.RaceTime() < r.tun.StealthWarmup {
		return
	}

	gap := player.GlobalProgress - v.GlobalProgress
	if gap > r.tun.StealthGap {
		v.AI.BehindTime += dt
	} else {
		v.AI.BehindTime = 0
	}

	v.AI.StealthCheck -= dt
	if v.AI.StealthCheck > 0 {
		return
	}
	v.AI.StealthCheck = r.tun.StealthInterval

	if v.Timers.StealthCooldown > 0 || v.AI.BehindTime < r.tun.StealthBehind {
		return
	}
	if r.tun.StealthMaxUses > 0 && v.AI.StealthUses >= r.tun.StealthMaxUses {
		return
	}
	if visibleTo(player, v.Position) {
		return
	}
	chance := clamp((gap-r.tun.StealthGap)/r.tun.StealthGap, 0.15, 0.8)
	if r.rng.Float64() >= chance {
		return
	}
	r.teleportBehind(v, player)
}

// visibleTo reports whether pos is in front of the player within view range.
func visibleTo(player *Vehicle, pos Vec3) bool {
	rel := planar(pos.Sub(player.Position))
	ahead := rel.Dot(player.Forward())
	if ahead <= 0 || ahead > stealthViewRange {
		return false
	}
	return math.Abs(rel.Dot(player.Right())) < ahead*stealthViewCone
}

// teleportBehind places v on the route behind the player and rebuilds its
// lap and checkpoint bookkeeping for the new position.
func (r *Referee) teleportBehind(v, player *Vehicle) {
	t := r.track
	goal := player.GlobalProgress - r.tun.StealthOffset - r.rng.Float64()*stealthJitter
	// never move a vehicle backwards in the standings
	if goal <= v.GlobalProgress || goal < 0 {
		return
	}
	lap, target := 0, goal
	if t.Loop {
		lap = int(math.Floor(goal / t.TotalLength))
		target = goal - float64(lap)*t.TotalLength
	}

	idx := 0
	for i, cp := range t.Checkpoints {
		if cp.S <= target {
			idx = i
		}
	}

	from := v.Progress
	sample := t.SampleAt(target)
	lane := v.AI.LaneBias * t.HalfWidth
	p := sample.Point.Add(track.RightOf(sample.Forward).Mul(lane))
	p = Vec3{p.X(), t.HeightAt(p.X(), p.Z()) + GroundClearance, p.Z()}

	v.Position = p
	v.Heading = track.HeadingOf(sample.Forward)
	speed := math.Max(player.PlanarSpeed()*stealthSpeedFactor, stealthMinSpeed)
	v.Velocity = sample.Forward.Mul(speed)
	v.Grounded = true
	v.Progress = target
	v.PrevProgress = target
	v.TrackDist = math.Abs(lane)
	v.Lap = lap
	v.Checkpoint = idx
	if t.Loop {
		v.NextCheckpoint = (idx + 1) % len(t.Checkpoints)
	} else {
		v.NextCheckpoint = min(idx+1, len(t.Checkpoints)-1)
	}
	v.GlobalProgress = r.GlobalProgress(v)

	v.Timers.StealthCooldown = r.tun.StealthCooldown
	v.AI.StealthUses++
	v.AI.BehindTime = 0
	v.AI.StuckTime = 0
	v.AI.EscapePhase = 0

	log.Debug().
		Str("vehicle", v.ID).
		Float64("from", from).
		Float64("to", target).
		Int("uses", v.AI.StealthUses).
		Msg("👻 Stealth teleport")
	r.emit(EventTypeTeleport, v, TeleportPayload{FromS: from, ToS: target, Uses: v.AI.StealthUses})
}
