package race

import "math"

// ramps launches grounded vehicles that cross a ramp fast enough.
// Each ramp has its own per-vehicle cooldown.
func (in *Integrator) ramps(v *Vehicle) {
	ramps := in.track.Ramps
	if len(v.rampCooldowns) != len(ramps) {
		v.rampCooldowns = make([]float64, len(ramps))
	}
	for i := range v.rampCooldowns {
		if v.rampCooldowns[i] > 0 {
			v.rampCooldowns[i] = math.Max(0, v.rampCooldowns[i]-Dt)
		}
	}
	if !v.Grounded {
		return
	}

	for i := range ramps {
		r := &ramps[i]
		if v.rampCooldowns[i] > 0 {
			continue
		}
		rel := planar(v.Position.Sub(r.Position))
		along := rel.Dot(r.Forward)
		across := rel.Dot(r.Right)
		if math.Abs(across) > r.Width/2 || math.Abs(along) > r.Length/2 {
			continue
		}
		approach := v.Velocity.Dot(r.Forward)
		if approach < r.MinApproach {
			continue
		}

		carry := (approach - r.MinApproach) * RampCarryFactor
		v.Velocity = v.Velocity.Add(r.Forward.Mul(carry))
		v.Velocity = Vec3{v.Velocity.X(), math.Max(v.Velocity.Y(), r.LaunchSpeed), v.Velocity.Z()}
		v.Grounded = false
		v.Timers.RampLaunchGrace = RampGrace
		v.rampCooldowns[i] = r.Cooldown

		in.fx.Sound("ramp", 220+approach*4)
		in.fx.Particles(v.Position, "#ffd166", 10)
		return
	}
}

// boostPads grants the pad's boost duration. A pad does not retrigger
// while more than half of its boost remains.
func (in *Integrator) boostPads(v *Vehicle) {
	for i := range in.track.BoostPads {
		p := &in.track.BoostPads[i]
		reach := p.Radius + VehicleRadius
		if planarDistSq(v.Position, p.Position) > reach*reach {
			continue
		}
		if v.Timers.Boost > p.Duration*0.5 {
			continue
		}
		v.Timers.Boost = math.Max(v.Timers.Boost, p.Duration)
		in.fx.Sound("boost", 440)
		in.fx.Particles(v.Position, "#3ddcff", 12)
	}
}
