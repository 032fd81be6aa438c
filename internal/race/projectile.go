package race

import (
	"math"

	"kart-race/internal/track"
)

// ProjectileKind selects flight and impact behaviour.
type ProjectileKind uint8

const (
	ProjectileBanana ProjectileKind = iota
	ProjectileBomb
)

func (k ProjectileKind) String() string {
	if k == ProjectileBomb {
		return "bomb"
	}
	return "banana"
}

// Projectile constants
const (
	BananaSpeed      = 28.0
	BananaLift       = 6.0
	BananaTTL        = 2.5
	BananaTurnRate   = 1.2
	BananaPower      = 10.0
	BananaGravity    = 12.0
	BombSpeed        = 32.0
	BombLift         = 3.0
	BombTTL          = 3.0
	BombTurnRate     = 2.4
	BombRadius       = 7.0
	BombPower        = 16.0
	BombGravity      = 20.0 // lobbed, drops faster than a banana
	ProjectileRadius = 0.6
	OwnerImmunity    = 0.35
	HomingRange      = 80.0
	HomingConeCos    = 0.5
)

// Projectile is a homing object in flight.
type Projectile struct {
	ID       uint64
	Kind     ProjectileKind
	Owner    *Vehicle
	Target   *Vehicle
	Position Vec3
	Velocity Vec3
	TTL      float64
	Age      float64
	TurnRate float64
	Gravity  float64
}

// launchProjectile fires forward from the owner and picks a homing target.
func (c *Combat) launchProjectile(kind ProjectileKind, owner *Vehicle) {
	if len(c.projectiles) >= c.limits.MaxProjectiles {
		// drop the oldest
		c.projectiles = append(c.projectiles[:0], c.projectiles[1:]...)
	}

	fwd := owner.Forward()
	speed, lift, ttl, turn, g := BananaSpeed, BananaLift, BananaTTL, BananaTurnRate, BananaGravity
	if kind == ProjectileBomb {
		speed, lift, ttl, turn, g = BombSpeed, BombLift, BombTTL, BombTurnRate, BombGravity
	}

	p := &Projectile{
		ID:       c.id(),
		Kind:     kind,
		Owner:    owner,
		Target:   c.homingTarget(owner),
		Position: owner.Position.Add(fwd.Mul(VehicleRadius + 0.8)).Add(Vec3{0, 0.6, 0}),
		Velocity: fwd.Mul(speed).Add(planar(owner.Velocity).Mul(0.5)).Add(Vec3{0, lift, 0}),
		TTL:      ttl,
		TurnRate: turn,
		Gravity:  g,
	}
	c.projectiles = append(c.projectiles, p)
	c.fx.Sound("launch_"+kind.String(), 330)
}

// homingTarget picks the best-aligned nearby vehicle in the owner's
// forward cone.
func (c *Combat) homingTarget(owner *Vehicle) *Vehicle {
	fwd := owner.Forward()
	var best *Vehicle
	bestScore := math.Inf(1)
	for _, v := range c.caps.Vehicles() {
		if v == owner || !v.Active() {
			continue
		}
		rel := planar(v.Position.Sub(owner.Position))
		d := rel.Len()
		if d < 1e-6 || d > HomingRange {
			continue
		}
		align := rel.Mul(1 / d).Dot(fwd)
		if align < HomingConeCos {
			continue
		}
		if score := d / align; score < bestScore {
			best, bestScore = v, score
		}
	}
	return best
}

// updateProjectiles steers, moves and resolves every projectile.
func (c *Combat) updateProjectiles(dt float64) {
	n := 0
	for _, p := range c.projectiles {
		if c.stepProjectile(p, dt) {
			c.projectiles[n] = p
			n++
		}
	}
	for i := n; i < len(c.projectiles); i++ {
		c.projectiles[i] = nil
	}
	c.projectiles = c.projectiles[:n]
}

// stepProjectile returns false once the projectile is spent.
func (c *Combat) stepProjectile(p *Projectile, dt float64) bool {
	p.Age += dt
	p.TTL -= dt

	if p.Target != nil && p.Target.Active() {
		c.steerProjectile(p, dt)
	}
	p.Velocity = p.Velocity.Add(Vec3{0, -p.Gravity * dt, 0})
	p.Position = p.Position.Add(p.Velocity.Mul(dt))

	reach := ProjectileRadius + VehicleRadius
	for _, v := range c.caps.Vehicles() {
		if !v.Active() {
			continue
		}
		if v == p.Owner && p.Age < OwnerImmunity {
			continue
		}
		if v.Position.Sub(p.Position).LenSqr() > reach*reach*1.5 {
			continue
		}
		c.impact(p, v)
		return false
	}

	ground := c.track.HeightAt(p.Position.X(), p.Position.Z())
	if p.Position.Y() <= ground || p.TTL <= 0 {
		c.expire(p, ground)
		return false
	}
	return true
}

// steerProjectile turns the planar velocity toward the target by at most
// TurnRate*dt radians, keeping planar speed.
func (c *Combat) steerProjectile(p *Projectile, dt float64) {
	flat := planar(p.Velocity)
	speed := flat.Len()
	if speed < 1e-6 {
		return
	}
	want := planar(p.Target.Position.Sub(p.Position))
	if want.LenSqr() < 1e-9 {
		return
	}
	cur := track.HeadingOf(flat)
	diff := wrapAngle(track.HeadingOf(want) - cur)
	step := clamp(diff, -p.TurnRate*dt, p.TurnRate*dt)
	dir := track.ForwardFromHeading(cur + step).Mul(speed)
	p.Velocity = Vec3{dir.X(), p.Velocity.Y(), dir.Z()}
}

func (c *Combat) impact(p *Projectile, v *Vehicle) {
	switch p.Kind {
	case ProjectileBomb:
		c.explode(p.Position, p.Owner)
	default:
		c.ApplyItemHit(v, p.Owner, p.Velocity, BananaPower, "banana")
		c.fx.Particles(p.Position, "#ffe135", 10)
	}
}

// expire handles a projectile that hit the ground or ran out of time.
func (c *Combat) expire(p *Projectile, ground float64) {
	switch p.Kind {
	case ProjectileBomb:
		c.explode(p.Position, p.Owner)
	default:
		c.dropHazard(HazardBanana, Vec3{p.Position.X(), ground, p.Position.Z()}, p.Owner)
	}
}

// explode knocks back every vehicle in range, the owner included.
func (c *Combat) explode(at Vec3, owner *Vehicle) {
	for _, v := range c.caps.Vehicles() {
		if !v.Active() {
			continue
		}
		rel := planar(v.Position.Sub(at))
		d := rel.Len()
		if d > BombRadius {
			continue
		}
		falloff := 1 - 0.5*d/BombRadius
		c.ApplyItemHit(v, owner, rel, BombPower*falloff, "bomb")
	}
	c.fx.Particles(at, "#ff8c00", 30)
	c.fx.Sound("explosion", 70)
}

// Projectiles exposes in-flight projectiles for snapshots.
func (c *Combat) Projectiles() []*Projectile {
	return c.projectiles
}
