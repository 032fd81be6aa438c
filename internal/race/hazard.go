package race

import "math"

// HazardKind selects what a ground hazard does when triggered.
type HazardKind uint8

const (
	HazardTrap HazardKind = iota
	HazardBanana
)

func (k HazardKind) String() string {
	if k == HazardBanana {
		return "banana"
	}
	return "trap"
}

// Hazard constants
const (
	HazardRadius        = 1.4
	HazardArmDelay      = 0.5
	HazardOwnerImmunity = 1.5
	HazardLifetime      = 20.0
	TrapPower           = 12.0
	BananaSlipPower     = 6.0
	BananaSpin          = 2.5 // radians added to heading
)

// GroundHazard sits on the track until triggered or expired.
type GroundHazard struct {
	ID            uint64
	Kind          HazardKind
	Owner         *Vehicle
	Position      Vec3
	Radius        float64
	Life          float64
	ArmDelay      float64
	OwnerImmunity float64
}

// dropHazard places a hazard on the ground below pos. When full the
// oldest hazard is removed.
func (c *Combat) dropHazard(kind HazardKind, pos Vec3, owner *Vehicle) {
	if len(c.hazards) >= c.limits.MaxHazards {
		c.hazards = append(c.hazards[:0], c.hazards[1:]...)
	}
	ground := c.track.HeightAt(pos.X(), pos.Z())
	c.hazards = append(c.hazards, &GroundHazard{
		ID:            c.id(),
		Kind:          kind,
		Owner:         owner,
		Position:      Vec3{pos.X(), ground, pos.Z()},
		Radius:        HazardRadius,
		Life:          HazardLifetime,
		ArmDelay:      HazardArmDelay,
		OwnerImmunity: HazardOwnerImmunity,
	})
	c.fx.Sound("drop_"+kind.String(), 260)
}

// updateHazards ages hazards and triggers armed ones under vehicles.
func (c *Combat) updateHazards(dt float64) {
	n := 0
	for _, h := range c.hazards {
		h.Life -= dt
		h.ArmDelay -= dt
		h.OwnerImmunity -= dt
		if h.Life > 0 && !c.triggerHazard(h) {
			c.hazards[n] = h
			n++
		}
	}
	for i := n; i < len(c.hazards); i++ {
		c.hazards[i] = nil
	}
	c.hazards = c.hazards[:n]
}

// triggerHazard returns true when the hazard fired and is consumed.
func (c *Combat) triggerHazard(h *GroundHazard) bool {
	if h.ArmDelay > 0 {
		return false
	}
	reach := h.Radius + VehicleRadius
	for _, v := range c.caps.Vehicles() {
		if !v.Active() || !v.Grounded {
			continue
		}
		if v == h.Owner && h.OwnerImmunity > 0 {
			continue
		}
		if planarDistSq(v.Position, h.Position) > reach*reach {
			continue
		}

		switch h.Kind {
		case HazardBanana:
			if c.ApplyItemHit(v, h.Owner, v.Velocity.Mul(-1), BananaSlipPower, "banana") && v.Down == KnockDown {
				spin := BananaSpin
				if h.ID%2 == 1 {
					spin = -spin
				}
				v.Heading = wrapAngle(v.Heading + spin)
			}
		default:
			c.ApplyItemHit(v, h.Owner, Vec3{0, 0, 0}, TrapPower, "trap")
			v.Velocity = Vec3{v.Velocity.X() * 0.3, math.Max(v.Velocity.Y(), 3), v.Velocity.Z() * 0.3}
		}
		c.fx.Particles(h.Position, "#ffaa00", 12)
		return true
	}
	return false
}

// Hazards exposes live hazards for snapshots.
func (c *Combat) Hazards() []*GroundHazard {
	return c.hazards
}
