package race

import (
	"math"
	"math/rand"

	"kart-race/internal/track"
)

// DriverCaps are what control logic needs from the rest of the core.
type DriverCaps struct {
	Vehicles    func() []*Vehicle
	Player      func() *Vehicle
	Hazards     func() []*GroundHazard
	Obstacles   func(x, z, radius float64) []uint32
	Punch       func(v *Vehicle) int
	PunchTarget func(v *Vehicle, reach float64) *Vehicle
	UseItem     func(v *Vehicle) bool
	Respawn     func(v *Vehicle, reason RespawnReason, forced int)
	RaceTime    func() float64
	Emit        func(t EventType, v *Vehicle, payload interface{})
}

// Driver turns player input or AI heuristics into control intent.
type Driver struct {
	track    *track.Track
	tun      *Tunables
	rng      *rand.Rand
	caps     DriverCaps
	laps     int
	menuMode bool
}

func NewDriver(t *track.Track, tun *Tunables, rng *rand.Rand, laps int, menuMode bool, caps DriverCaps) *Driver {
	if laps < 1 {
		laps = 1
	}
	return &Driver{track: t, tun: tun, rng: rng, caps: caps, laps: laps, menuMode: menuMode}
}

// AI steering weights and ranges
const (
	lookNear, lookMid, lookFar, lookUltra = 6.0, 12.0, 22.0, 36.0
	lookSpeedScale                        = 0.6

	SteerGain        = 2.2
	PreSteerGain     = 0.25
	ApexCut          = 0.45 // of half-width on sharp turns
	AvoidRange       = 25.0
	AvoidGain        = 6.0
	ClusterRange     = 8.0
	ClusterGain      = 0.35
	BoundaryStart    = 0.55 // of half-width
	BoundaryGain     = 1.6
	PredictHorizon   = 0.5
	PredictLimit     = 0.9
	PredictGain      = 0.35
	DraftRange       = 10.0
	DraftLateral     = 2.0
	DraftBonus       = 2.0
	DownhillSpeedAdd = 3.0
	HeadingPenalty   = 6.0
	EdgePenalty      = 20.0
	LateRaceBonus    = 3.0
)

var lookWeights = [4]float64{0.45, 0.3, 0.17, 0.08}

// curvature is the heading change from the vehicle's path point to the
// lookahead points; positive turns right.
type curvature struct {
	near, mid, far, ultra float64
}

func (c curvature) max() float64 {
	return math.Max(math.Max(math.Abs(c.near), math.Abs(c.mid)), math.Max(math.Abs(c.far), math.Abs(c.ultra)))
}

func (d *Driver) lookDistances(speed float64) [4]float64 {
	k := 1 + speed*lookSpeedScale/10
	return [4]float64{lookNear * k, lookMid * k, lookFar * k, lookUltra * k}
}

func (d *Driver) curvatureAhead(s float64, dists [4]float64) curvature {
	base := track.HeadingOf(d.track.SampleAt(s).Forward)
	h := func(dist float64) float64 {
		return wrapAngle(track.HeadingOf(d.track.SampleAt(s+dist).Forward) - base)
	}
	return curvature{near: h(dists[0]), mid: h(dists[1]), far: h(dists[2]), ultra: h(dists[3])}
}

// DriveAI fills v's control intent from the route and its surroundings.
func (d *Driver) DriveAI(v *Vehicle, p Profile, dt float64) {
	if v.AI.EscapePhase > 0 {
		d.escapeControl(v)
		return
	}
	t := d.track
	speed := v.PlanarSpeed()
	dists := d.lookDistances(speed)
	curve := d.curvatureAhead(v.Progress, dists)

	// lane: personal bias, pulled to the inside of sharp turns
	lane := v.AI.LaneBias
	turn := curve.mid
	if math.Abs(curve.far) > math.Abs(turn) {
		turn = curve.far
	}
	lane += sign(turn) * math.Min(1, math.Abs(turn)/0.6) * ApexCut
	lane = clamp(lane, -0.6, 0.6) * t.HalfWidth

	var aim Vec3
	for i, dist := range dists {
		sample := t.SampleAt(v.Progress + dist)
		pt := sample.Point.Add(track.RightOf(sample.Forward).Mul(lane))
		aim = aim.Add(pt.Mul(lookWeights[i]))
	}
	desired := track.HeadingOf(planar(aim.Sub(v.Position)))
	headingErr := wrapAngle(desired - v.Heading)

	steer := headingErr*SteerGain + curve.far*PreSteerGain
	steer += d.avoidance(v, p)
	steer += d.boundary(v)
	if !v.Grounded {
		steer *= 0.5
	}
	v.TargetSteer = clamp(steer, -1, 1)
	v.Mode = DriveForward
	v.ReverseThrottle = 0

	target := d.targetSpeed(v, p, curve, headingErr)
	d.shapeThrottle(v, speed, target, curve, headingErr)
}

// avoidance steers away from obstacles and hazards in a forward cone and
// from nearby vehicles.
func (d *Driver) avoidance(v *Vehicle, p Profile) float64 {
	fwd := v.Forward()
	right := track.RightOf(fwd)
	bias := 0.0
	dodge := 0.5 + p.Dodge

	push := func(rel Vec3, radius float64) {
		ahead := rel.Dot(fwd)
		if ahead <= 0 || ahead > AvoidRange {
			return
		}
		lat := rel.Dot(right)
		if math.Abs(lat) > ahead*0.6+radius+1.5 {
			return
		}
		side := sign(lat)
		if math.Abs(lat) < 1e-3 && v.Index%2 == 1 {
			side = -side
		}
		bias -= side * AvoidGain * dodge / math.Max(ahead, 2)
	}

	if d.caps.Obstacles != nil {
		obstacles := d.track.Obstacles
		for _, id := range d.caps.Obstacles(v.Position.X(), v.Position.Z(), AvoidRange) {
			o := &obstacles[id]
			if o.Kind == track.KindEdge {
				continue
			}
			push(planar(o.Position.Sub(v.Position)), o.BoundingRadius())
		}
	}
	if d.caps.Hazards != nil {
		for _, h := range d.caps.Hazards() {
			push(planar(h.Position.Sub(v.Position)), h.Radius)
		}
	}

	for _, other := range d.caps.Vehicles() {
		if other == v || !other.Active() {
			continue
		}
		rel := planar(other.Position.Sub(v.Position))
		dist := rel.Len()
		if dist > ClusterRange || dist < 1e-6 {
			continue
		}
		strength := (ClusterRange - dist) / ClusterRange * ClusterGain
		if dist < 2*VehicleRadius+1 {
			strength *= 2
		}
		bias -= sign(rel.Dot(right)) * strength
	}
	return bias
}

// boundary pulls back toward the centre near the edge, harder the closer
// it gets, and corrects early when the current velocity would leave the road.
func (d *Driver) boundary(v *Vehicle) float64 {
	t := d.track
	lat := t.Lateral(v.Position.X(), v.Position.Z(), v.Progress)
	frac := math.Abs(lat) / t.HalfWidth
	corr := 0.0
	if frac > BoundaryStart {
		k := (frac - BoundaryStart) / (1 - BoundaryStart)
		corr -= sign(lat) * k * k * BoundaryGain
	}

	future := v.Position.Add(v.Velocity.Mul(PredictHorizon))
	proj := t.ProjectNear(future.X(), future.Z(), v.Progress, ProjectWindow)
	if math.Sqrt(proj.DistSq) > t.HalfWidth*PredictLimit {
		corr -= sign(t.Lateral(future.X(), future.Z(), proj.S)) * PredictGain
	}
	return corr
}

// targetSpeed is the speed the AI aims for this tick.
func (d *Driver) targetSpeed(v *Vehicle, p Profile, curve curvature, headingErr float64) float64 {
	tun := d.tun
	target := tun.AIBaseSpeed * (1 + p.SpeedBias)

	if player := d.caps.Player(); player != nil && player != v && !player.Finished {
		gap := player.GlobalProgress - v.GlobalProgress
		if gap > 0 {
			target += math.Min(gap*tun.CatchUpGain, tun.CatchUpMax)
			if d.raceFraction(v) > 2.0/3.0 {
				target += LateRaceBonus * (0.5 + p.Aggression)
			}
		} else {
			target += math.Max(gap*tun.FallBackGain, -tun.FallBackMax)
		}
	}
	if v.Timers.Boost > 0 {
		target += BoostTopSpeedBonus * 0.5
	}

	fwd := v.Forward()
	ahead := v.Position.Add(fwd.Mul(3))
	if d.track.HeightAt(ahead.X(), ahead.Z()) < v.Position.Y()-GroundClearance-0.3 {
		target += DownhillSpeedAdd
	}
	if d.drafting(v) {
		target += DraftBonus
	}

	target -= curve.max() * tun.CurvaturePenalty * (1.2 - p.Risk*0.4)
	target -= math.Abs(headingErr) * HeadingPenalty
	if frac := v.TrackDist / d.track.HalfWidth; frac > 0.8 {
		target -= (frac - 0.8) * EdgePenalty
	}
	return clamp(target, tun.AIMinSpeed, tun.AIMaxSpeed)
}

func (d *Driver) drafting(v *Vehicle) bool {
	fwd := v.Forward()
	right := track.RightOf(fwd)
	for _, other := range d.caps.Vehicles() {
		if other == v || !other.Active() {
			continue
		}
		rel := planar(other.Position.Sub(v.Position))
		ahead := rel.Dot(fwd)
		if ahead > 0 && ahead < DraftRange && math.Abs(rel.Dot(right)) < DraftLateral {
			return true
		}
	}
	return false
}

// raceFraction is how much of the race v has completed, in [0, 1].
func (d *Driver) raceFraction(v *Vehicle) float64 {
	total := d.track.TotalLength
	if d.track.Loop {
		total *= float64(d.laps)
	}
	return clamp(v.GlobalProgress/total, 0, 1)
}

// shapeThrottle converts target speed into throttle and brake, braking
// before sharp turns and easing in after a knockdown.
func (d *Driver) shapeThrottle(v *Vehicle, speed, target float64, curve curvature, headingErr float64) {
	sharp := math.Abs(curve.mid) > 0.55 || math.Abs(curve.far) > 0.8
	throttle, brake := 0.0, 0.0
	switch {
	case sharp && speed > target+2:
		throttle = 0.35
		brake = clamp((speed-target)/8, 0.2, 1)
	case math.Abs(headingErr) > 0.6:
		throttle = 0.5
	case speed < target:
		throttle = 1
	case speed > target+3:
		brake = clamp((speed-target)/12, 0, 0.5)
	default:
		throttle = 0.2
	}

	if v.Down == KnockRecover {
		elapsed := 1 - v.Timers.Recover/RecoverDuration
		switch {
		case elapsed < 0.3:
			throttle = 0
		case elapsed > 0.7:
			throttle = math.Min(throttle, 0.3+(elapsed-0.7)*2)
		default:
			throttle = math.Min(throttle, 0.3)
		}
	}
	if !v.Grounded {
		brake = 0
	}
	v.Throttle = throttle
	v.Brake = brake
}
