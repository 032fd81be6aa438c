package race

import (
	"math"
	"math/rand"

	"kart-race/internal/race/spatial"
	"kart-race/internal/track"
)

// Combat constants
const (
	PunchRange       = 3.2
	PunchConeCos     = 0.64 // ~50 degrees either side
	PunchCooldown    = 0.8
	PunchAnimLock    = 0.25
	PunchBaseKnock   = 8.0
	PunchSpeedScale  = 0.35
	KnockdownMin     = 0.6
	KnockdownMax     = 2.2
	KnockdownPerUnit = 0.08
	RecoverDuration  = 0.8
	SuppressedBrake  = 0.6
	RecoverThrottle  = 0.5
	StunSteerScale   = 0.3
	ShieldDuration   = 8.0
	MaxShieldHits    = 3
	ShieldStun       = 0.35
	ShieldPushScale  = 0.4
	ItemHitImmunity  = 0.9
	HitLift          = 2.0
	ContactBounce    = 0.3
)

// Limits bounds transient object counts.
type Limits struct {
	MaxProjectiles int
	MaxHazards     int
	CommandQueue   int
}

// DefaultLimits returns production bounds.
func DefaultLimits() Limits {
	return Limits{MaxProjectiles: 24, MaxHazards: 32, CommandQueue: 1024}
}

// CombatCaps are what combat and items need from the orchestrator.
type CombatCaps struct {
	Vehicles func() []*Vehicle
	RaceTime func() float64
	Emit     func(t EventType, v *Vehicle, payload interface{})
}

// Combat owns punches, items, projectiles, ground hazards, item waves and
// vehicle-vehicle contact.
type Combat struct {
	track  *track.Track
	tun    *Tunables
	rng    *rand.Rand
	fx     EffectsSink
	caps   CombatCaps
	limits Limits

	projectiles []*Projectile
	hazards     []*GroundHazard
	waves       []*ItemWave
	bag         *ItemBag
	nextID      uint64

	sap  *spatial.SweepAndPrune
	xs   []float64
	skip []bool
}

func NewCombat(t *track.Track, tun *Tunables, rng *rand.Rand, fx EffectsSink, limits Limits, caps CombatCaps) *Combat {
	c := &Combat{
		track:       t,
		tun:         tun,
		rng:         rng,
		fx:          fx,
		caps:        caps,
		limits:      limits,
		projectiles: make([]*Projectile, 0, limits.MaxProjectiles),
		hazards:     make([]*GroundHazard, 0, limits.MaxHazards),
		bag:         NewItemBag(rng, 2),
		sap:         spatial.NewSweepAndPrune(16),
	}
	for i := range t.ItemAnchors {
		c.waves = append(c.waves, newItemWave(i))
	}
	return c
}

func (c *Combat) id() uint64 {
	c.nextID++
	return c.nextID
}

func (c *Combat) emit(t EventType, v *Vehicle, payload interface{}) {
	if c.caps.Emit != nil {
		c.caps.Emit(t, v, payload)
	}
}

// Knockdown puts v into the knockdown state for a duration scaled by
// power and suppresses its controls immediately.
func (c *Combat) Knockdown(v *Vehicle, power float64, source string) {
	c.knockdown(v, nil, power, source)
}

func (c *Combat) knockdown(v, attacker *Vehicle, power float64, source string) {
	if !v.Active() {
		return
	}
	d := clamp(KnockdownMin+power*KnockdownPerUnit, KnockdownMin, KnockdownMax)
	v.Down = KnockDown
	v.Timers.Knockdown = math.Max(v.Timers.Knockdown, d)
	v.Timers.Recover = 0
	suppress(v)

	payload := KnockdownPayload{Source: source, Duration: d}
	if attacker != nil {
		payload.AttackerID = attacker.ID
	}
	c.emit(EventTypeKnockdown, v, payload)
	c.fx.Particles(v.Position, "#ff5555", 14)
	c.fx.Sound("knockdown", 140)
}

// ApplyHit resolves a hit: a shield absorbs it with a short stun and a
// reduced push, otherwise the target is knocked down and pushed along dir.
// Returns false if the target cannot be hit.
func (c *Combat) ApplyHit(target, attacker *Vehicle, dir Vec3, power float64, source string) bool {
	if !target.Active() {
		return false
	}
	dir = normalizeOr(planar(dir), target.Forward().Mul(-1))

	if target.Shielded() {
		target.ShieldHits--
		if target.ShieldHits <= 0 {
			target.ShieldHits = 0
			target.Timers.Shield = 0
		}
		target.Timers.Stun = math.Max(target.Timers.Stun, ShieldStun)
		target.Velocity = target.Velocity.Add(dir.Mul(power * ShieldPushScale))
		c.fx.Sound("shield_block", 660)
		c.fx.Particles(target.Position, "#7fd3ff", 10)
		return true
	}

	c.knockdown(target, attacker, power, source)
	target.Velocity = target.Velocity.Add(dir.Mul(power)).Add(Vec3{0, HitLift, 0})
	if target.Velocity.Y() > 0 {
		target.Grounded = false
	}
	return true
}

// ApplyItemHit is ApplyHit gated by the target's item-hit immunity.
func (c *Combat) ApplyItemHit(target, attacker *Vehicle, dir Vec3, power float64, source string) bool {
	if target.Timers.ItemHitCooldown > 0 {
		return false
	}
	if !c.ApplyHit(target, attacker, dir, power, source) {
		return false
	}
	target.Timers.ItemHitCooldown = ItemHitImmunity
	return true
}

// Punch swings at vehicles in a short forward cone. Returns the number
// of vehicles hit, or -1 if the punch was not allowed.
func (c *Combat) Punch(v *Vehicle) int {
	if !v.Active() || v.Down != KnockNone || v.Timers.PunchCooldown > 0 || v.Timers.Punch > 0 {
		return -1
	}
	v.Timers.PunchCooldown = PunchCooldown
	v.Timers.Punch = PunchAnimLock
	c.fx.Sound("punch", 300)

	fwd := v.Forward()
	power := PunchBaseKnock + v.PlanarSpeed()*PunchSpeedScale
	hits := 0
	for _, other := range c.caps.Vehicles() {
		if !punchable(v, other) {
			continue
		}
		rel := planar(other.Position.Sub(v.Position))
		d := rel.Len()
		if d > PunchRange || d < 1e-6 {
			continue
		}
		if rel.Mul(1/d).Dot(fwd) < PunchConeCos {
			continue
		}
		if c.ApplyHit(other, v, rel, power, "punch") {
			hits++
		}
	}
	return hits
}

// punchable skips the attacker itself plus targets that are respawning,
// finished or already down.
func punchable(v, other *Vehicle) bool {
	return other != v && other.Active() && other.Down != KnockDown
}

// PunchTarget returns the nearest vehicle inside the punch cone, scaled
// by reach, or nil.
func (c *Combat) PunchTarget(v *Vehicle, reach float64) *Vehicle {
	fwd := v.Forward()
	var best *Vehicle
	bestD := math.Inf(1)
	for _, other := range c.caps.Vehicles() {
		if !punchable(v, other) {
			continue
		}
		rel := planar(other.Position.Sub(v.Position))
		d := rel.Len()
		if d > PunchRange*reach || d < 1e-6 || rel.Mul(1/d).Dot(fwd) < PunchConeCos {
			continue
		}
		if d < bestD {
			best, bestD = other, d
		}
	}
	return best
}

// advanceKnock walks Knockdown -> Recover -> none as timers expire.
func advanceKnock(v *Vehicle) {
	switch v.Down {
	case KnockDown:
		if v.Timers.Knockdown <= 0 {
			v.Down = KnockRecover
			v.Timers.Recover = RecoverDuration
		}
	case KnockRecover:
		if v.Timers.Recover <= 0 {
			v.Down = KnockNone
		}
	}
}

// suppress applies knockdown, recovery and stun limits to control intent.
func suppress(v *Vehicle) {
	switch v.Down {
	case KnockDown:
		v.Throttle = 0
		v.ReverseThrottle = 0
		v.Brake = SuppressedBrake
		v.TargetSteer = 0
	case KnockRecover:
		v.Throttle = math.Min(v.Throttle, RecoverThrottle)
		v.ReverseThrottle = math.Min(v.ReverseThrottle, RecoverThrottle)
		v.TargetSteer *= 0.5
	}
	if v.Timers.Stun > 0 {
		v.Throttle = 0
		v.ReverseThrottle = 0
		v.TargetSteer *= StunSteerScale
	}
}

// resolveContacts separates overlapping vehicles. Each unordered pair is
// handled once per tick; remote vehicles are not pushed.
func (c *Combat) resolveContacts() {
	vehicles := c.caps.Vehicles()
	if cap(c.xs) < len(vehicles) {
		c.xs = make([]float64, len(vehicles))
		c.skip = make([]bool, len(vehicles))
	}
	c.xs = c.xs[:len(vehicles)]
	c.skip = c.skip[:len(vehicles)]
	for i, v := range vehicles {
		c.xs[i] = v.Position.X()
		c.skip[i] = !v.Active()
	}

	for _, p := range c.sap.Update(c.xs, VehicleRadius, c.skip) {
		a, b := vehicles[p.A], vehicles[p.B]
		rel := planar(b.Position.Sub(a.Position))
		d := rel.Len()
		overlap := 2*VehicleRadius - d
		if overlap <= 0 {
			continue
		}
		n := normalizeOr(rel, a.Right())

		wa, wb := 0.5, 0.5
		switch {
		case a.IsRemote() && b.IsRemote():
			continue
		case a.IsRemote():
			wa, wb = 0, 1
		case b.IsRemote():
			wa, wb = 1, 0
		}
		a.Position = a.Position.Sub(n.Mul(overlap * wa))
		b.Position = b.Position.Add(n.Mul(overlap * wb))

		closing := b.Velocity.Sub(a.Velocity).Dot(n)
		if closing >= 0 {
			continue
		}
		j := -(1 + ContactBounce) * closing
		a.Velocity = a.Velocity.Sub(n.Mul(j * wa))
		b.Velocity = b.Velocity.Add(n.Mul(j * wb))
		if -closing > 4 {
			c.fx.Sound("bump", 180)
		}
	}
}
