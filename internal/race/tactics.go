package race

import "math"

// Per-decision base probabilities, rolled once per tick.
const (
	PunchChance       = 0.04
	OffensiveChance   = 0.02
	DefensiveChance   = 0.012
	UtilityChance     = 0.03
	ShieldThreatRange = 15.0
	TrapThreatRange   = 20.0
	HomingPlayerRange = HomingRange * 0.75
)

// Tactics rolls the AI's punch and item decisions for this tick.
func (d *Driver) Tactics(v *Vehicle, p Profile) {
	if !v.Active() || v.Down != KnockNone || v.AI.EscapePhase > 0 {
		return
	}
	if d.caps.RaceTime() < d.tun.CombatGracePeriod {
		return
	}
	player := d.caps.Player()
	behind := player != nil && player != v && player.GlobalProgress > v.GlobalProgress

	if v.Timers.PunchCooldown <= 0 && d.caps.PunchTarget != nil {
		if target := d.caps.PunchTarget(v, 1); target != nil {
			chance := PunchChance * (0.5 + p.Aggression)
			if behind {
				chance *= 1.4
			}
			if target.IsPlayer() {
				chance *= 1.25
			} else {
				chance *= 0.8
			}
			chance *= math.Min(1, v.PlanarSpeed()/12)
			if d.rng.Float64() < chance {
				d.caps.Punch(v)
			}
		}
	}

	if v.Item != ItemNone && v.Timers.ItemCooldown <= 0 && d.caps.UseItem != nil {
		if d.rng.Float64() < d.itemChance(v, p, behind) {
			d.caps.UseItem(v)
		}
	}
}

// itemChance weighs the held item by category, personality, standing and
// whether a useful target is around.
func (d *Driver) itemChance(v *Vehicle, p Profile, behind bool) float64 {
	var chance float64
	switch v.Item.Category() {
	case CategoryOffensive:
		chance = OffensiveChance * (0.5 + p.Aggression)
		if behind {
			chance *= 1.5
		}
	case CategoryDefensive:
		chance = DefensiveChance * (0.5 + p.Dodge)
	case CategoryUtility:
		chance = UtilityChance * (0.75 + p.SpeedBias*4 + p.Risk*0.5)
		if behind {
			chance *= 1.3
		}
	}

	fwd := v.Forward()
	nearest, ahead, behindNear := math.Inf(1), math.Inf(1), math.Inf(1)
	for _, other := range d.caps.Vehicles() {
		if other == v || !other.Active() {
			continue
		}
		rel := planar(other.Position.Sub(v.Position))
		dist := rel.Len()
		nearest = math.Min(nearest, dist)
		if dist > 0 && rel.Dot(fwd)/dist > HomingConeCos {
			ahead = math.Min(ahead, dist)
		} else if rel.Dot(fwd) < 0 {
			behindNear = math.Min(behindNear, dist)
		}
	}

	switch v.Item {
	case ItemBanana, ItemBomb:
		chance *= d.homingWeight(v, ahead)
	case ItemBash:
		if ahead > BashRadius {
			return 0
		}
		chance *= 3
	case ItemShock:
		if nearest > ShockRadius {
			return 0
		}
		chance *= 2
	case ItemShield:
		if nearest < ShieldThreatRange {
			chance *= 2
		}
	case ItemTrap:
		if behindNear < TrapThreatRange {
			chance *= 2
		} else {
			chance *= 0.5
		}
	}
	return clamp(chance, 0, 1)
}

// homingWeight scales homing-item use by how close and how well lined up
// the human player is. Other vehicles ahead only keep a reduced chance.
func (d *Driver) homingWeight(v *Vehicle, ahead float64) float64 {
	if player := d.caps.Player(); player != nil && player != v && player.Active() {
		rel := planar(player.Position.Sub(v.Position))
		if dist := rel.Len(); dist > 1e-6 && dist < HomingPlayerRange {
			if align := rel.Dot(v.Forward()) / dist; align > HomingConeCos {
				closeness := 1 - dist/HomingPlayerRange
				return 2 + 2*closeness*align
			}
		}
	}
	if ahead < HomingPlayerRange {
		return 1
	}
	return 0.4
}
