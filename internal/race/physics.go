package race

import (
	"math"

	"kart-race/internal/race/spatial"
	"kart-race/internal/track"
)

// Dt is the fixed simulation step.
const Dt = 1.0 / 120.0

// Physics constants. Distances in metres, speeds in m/s.
const (
	Gravity             = 24.0
	EngineForce         = 38.0
	ReverseForceScale   = 0.55
	BrakeForce          = 42.0
	BaseTopSpeed        = 34.0
	BoostTopSpeedBonus  = 12.0
	AirTopSpeedBonus    = 6.0
	BoostForceScale     = 1.6
	ShieldForceScale    = 0.92
	RecoverDriveScale   = 0.5
	RecoverLockFraction = 0.4 // share of the recover window with no drive at all
	UphillPenalty       = 0.45
	DownhillBonus       = 0.35
	MaxReverseSpeed     = 9.0

	GripBase         = 9.0
	GripSpeedFalloff = 0.12
	GripMin          = 3.0
	LateralDamping   = 6.0
	DragBase         = 0.15
	DragSpeedFactor  = 0.011
	AirDrag          = 0.02

	SteerRateGround     = 10.0
	SteerRateAir        = 4.0
	SteerAuthorityMax   = 2.4 // rad/s at standstill
	SteerAuthorityMin   = 0.9
	SteerAuthoritySpeed = 30.0
	HeadingCatchUpSpeed = 4.0
	HeadingCatchUpRate  = 2.5

	AirPitchRate = 2.0
	AirRollRate  = 2.2
	AirTiltMax   = 0.8
	TiltSettle   = 8.0

	OffTrackSteerFraction = 0.85 // of half-width, where the edge pull starts
	OffTrackPull          = 6.0
	OffTrackDamping       = 2.0
	MudFactor             = 1.25 // of half-width
	MudDrag               = 1.8  // planar speed loss per second
	DustInterval          = 0.15

	GroundClearance   = 0.45
	SnapToleranceDown = 0.6 // grounded vehicles stick over crests within this gap
	SnapToleranceAir  = 0.15
	LandingStunSpeed  = 14.0
	LandingHardSpeed  = 22.0
	LandingStun       = 0.25
	LandingHardStun   = 0.6
	FallLimit         = 40.0

	VehicleRadius   = 1.1
	ProjectWindow   = 6
	RampGrace       = 0.2
	RampCarryFactor = 0.15
)

// PhysicsCaps are the capabilities the integrator needs from the rest of
// the core.
type PhysicsCaps struct {
	Respawn   func(v *Vehicle, reason RespawnReason, forced int)
	Knockdown func(v *Vehicle, power float64, source string)
	Pickup    func(v *Vehicle)
}

// Integrator advances one vehicle by one fixed step.
type Integrator struct {
	track     *track.Track
	tun       *Tunables
	obstacles *spatial.Grid
	fx        EffectsSink
	caps      PhysicsCaps
	menuMode  bool
}

// NewIntegrator indexes the track's obstacles for collision queries.
func NewIntegrator(t *track.Track, tun *Tunables, fx EffectsSink, caps PhysicsCaps, menuMode bool) *Integrator {
	return &Integrator{
		track:     t,
		tun:       tun,
		obstacles: obstacleGrid(t),
		fx:        fx,
		caps:      caps,
		menuMode:  menuMode,
	}
}

// Step integrates v. air carries the player's pitch/roll input while
// airborne and may be nil.
func (in *Integrator) Step(v *Vehicle, air *Input, dt float64) {
	if v.Respawning || v.Finished {
		return
	}
	t := in.track

	in.steer(v, dt)

	var acc Vec3
	if v.Grounded {
		acc = in.groundForces(v)
	} else {
		acc = in.airForces(v, air, dt)
	}

	// route edge handling
	proj := t.ProjectNear(v.Position.X(), v.Position.Z(), v.Progress, ProjectWindow)
	dist := math.Sqrt(proj.DistSq)
	edge := t.HalfWidth * OffTrackSteerFraction
	if dist > edge && v.Grounded {
		center := t.SampleAt(proj.S).Point
		toward := normalizeOr(planar(center.Sub(v.Position)), Vec3{})
		acc = acc.Add(toward.Mul(OffTrackPull * (dist - edge)))
		right := v.Right()
		lat := v.Velocity.Dot(right)
		acc = acc.Sub(right.Mul(lat * OffTrackDamping))
	}

	v.Velocity = v.Velocity.Add(acc.Mul(dt))
	if v.Grounded {
		in.shapeGroundVelocity(v, dt)
	}

	v.InMud = dist > t.HalfWidth*MudFactor
	if v.InMud && v.Grounded {
		drag := MudDrag
		if !v.IsPlayer() {
			drag *= 0.5
		}
		keep := 1 - drag*dt
		v.Velocity = Vec3{v.Velocity.X() * keep, v.Velocity.Y(), v.Velocity.Z() * keep}
		if v.Timers.Dust <= 0 && v.PlanarSpeed() > 3 {
			in.fx.Particles(v.Position, "#8b6b3d", 6)
			v.Timers.Dust = DustInterval
		}
	}

	in.clampSpeed(v)
	v.Position = v.Position.Add(v.Velocity.Mul(dt))

	in.ramps(v)
	in.boostPads(v)
	if in.caps.Pickup != nil {
		in.caps.Pickup(v)
	}
	in.collideObstacles(v)

	ground := t.HeightAt(v.Position.X(), v.Position.Z())
	if !finite(v.Position) || v.Position.Y() < ground-FallLimit {
		in.caps.Respawn(v, RespawnFell, -1)
		return
	}
	in.snapToGround(v, ground)

	// progress
	proj = t.ProjectNear(v.Position.X(), v.Position.Z(), v.Progress, ProjectWindow)
	v.Progress = proj.S
	v.TrackDist = math.Sqrt(proj.DistSq)

	if !in.menuMode && v.TrackDist > t.HalfWidth*in.tun.OffTrackRespawnFactor {
		in.caps.Respawn(v, RespawnOffTrack, -1)
	}
}

// steer eases Steer toward TargetSteer and integrates heading.
func (in *Integrator) steer(v *Vehicle, dt float64) {
	rate := SteerRateGround
	if !v.Grounded {
		rate = SteerRateAir
	}
	v.Steer += (v.TargetSteer - v.Steer) * (1 - math.Exp(-rate*dt))
	v.Steer = clamp(v.Steer, -1, 1)

	speed := v.PlanarSpeed()
	f := clamp(speed/SteerAuthoritySpeed, 0, 1)
	authority := SteerAuthorityMax + (SteerAuthorityMin-SteerAuthorityMax)*f
	if v.Down == KnockRecover {
		authority *= 0.5
	}
	if v.Down == KnockDown {
		authority = 0
	}
	dir := 1.0
	if v.ForwardSpeed() < -0.5 {
		dir = -1
	}
	v.Heading = wrapAngle(v.Heading + v.Steer*authority*dir*dt)
}

// driveScale combines slope, boost, shield and knockdown effects on drive force.
func (in *Integrator) driveScale(v *Vehicle, slope float64) float64 {
	scale := 1.0
	if slope > 0 {
		scale *= 1 - UphillPenalty*math.Min(slope, 1)
	} else {
		scale *= 1 + DownhillBonus*math.Min(-slope, 1)
	}
	if v.Timers.Boost > 0 {
		scale *= BoostForceScale
	}
	if v.Shielded() {
		scale *= ShieldForceScale
	}
	switch v.Down {
	case KnockDown:
		return 0
	case KnockRecover:
		// no drive until the lock part of the recovery has elapsed
		if v.Timers.Recover > RecoverDuration*(1-RecoverLockFraction) {
			return 0
		}
		scale *= RecoverDriveScale
	}
	return scale
}

func (in *Integrator) groundForces(v *Vehicle) Vec3 {
	t := in.track
	pos := v.Position
	normal := t.NormalAt(pos.X(), pos.Z())
	fwd := v.Forward()
	right := track.RightOf(fwd)

	ahead := pos.Add(fwd.Mul(1.5))
	behind := pos.Sub(fwd.Mul(1.5))
	slope := (t.HeightAt(ahead.X(), ahead.Z()) - t.HeightAt(behind.X(), behind.Z())) / 3

	// drive along the terrain tangent
	tangent := normalizeOr(fwd.Sub(normal.Mul(fwd.Dot(normal))), fwd)
	scale := in.driveScale(v, slope)
	acc := tangent.Mul(v.Throttle * EngineForce * scale)
	if v.Mode == DriveReverse {
		acc = acc.Sub(tangent.Mul(v.ReverseThrottle * EngineForce * ReverseForceScale * scale))
	}

	flat := planar(v.Velocity)
	speed := flat.Len()
	if v.Brake > 0 && speed > 0.1 {
		decel := math.Min(v.Brake*BrakeForce, speed/Dt)
		acc = acc.Sub(flat.Mul(decel / speed))
	}

	// gravity component along the slope
	g := Vec3{0, -Gravity, 0}
	acc = acc.Add(g.Sub(normal.Mul(g.Dot(normal))))

	grip := math.Max(GripMin, GripBase-GripSpeedFalloff*speed)
	lat := v.Velocity.Dot(right)
	acc = acc.Sub(right.Mul(lat * grip))

	drag := DragBase + speed*DragSpeedFactor
	return acc.Sub(flat.Mul(drag))
}

func (in *Integrator) airForces(v *Vehicle, air *Input, dt float64) Vec3 {
	if air != nil && v.IsPlayer() {
		pitch := 0.0
		if air.Forward {
			pitch -= 1
		}
		if air.Brake {
			pitch += 1
		}
		roll := 0.0
		if air.Right {
			roll += 1
		}
		if air.Left {
			roll -= 1
		}
		v.Pitch = clamp(v.Pitch+pitch*AirPitchRate*dt, -AirTiltMax, AirTiltMax)
		v.Roll = clamp(v.Roll+roll*AirRollRate*dt, -AirTiltMax, AirTiltMax)
	}
	flat := planar(v.Velocity)
	return Vec3{0, -Gravity, 0}.Sub(flat.Mul(AirDrag))
}

// shapeGroundVelocity clamps reverse speed, damps sideways drift and lets
// the heading follow the direction of travel.
func (in *Integrator) shapeGroundVelocity(v *Vehicle, dt float64) {
	fwd := v.Forward()
	right := track.RightOf(fwd)
	vf := v.Velocity.X()*fwd.X() + v.Velocity.Z()*fwd.Z()
	vl := v.Velocity.X()*right.X() + v.Velocity.Z()*right.Z()

	if vf < -MaxReverseSpeed {
		vf = -MaxReverseSpeed
	}
	vl *= math.Exp(-LateralDamping * dt)

	flat := fwd.Mul(vf).Add(right.Mul(vl))
	v.Velocity = Vec3{flat.X(), v.Velocity.Y(), flat.Z()}

	if speed := flat.Len(); speed > HeadingCatchUpSpeed && vf > 0 && v.Down != KnockDown {
		velHeading := track.HeadingOf(flat)
		v.Heading = wrapAngle(v.Heading + wrapAngle(velHeading-v.Heading)*math.Min(1, HeadingCatchUpRate*dt))
	}

	// tilt settles back to level on the ground
	settle := math.Exp(-TiltSettle * dt)
	v.Pitch *= settle
	v.Roll *= settle
}

func (in *Integrator) clampSpeed(v *Vehicle) {
	top := v.TopSpeed
	if top <= 0 {
		top = BaseTopSpeed
	}
	if v.Timers.Boost > 0 {
		top += BoostTopSpeedBonus
	}
	if !v.Grounded {
		top += AirTopSpeedBonus
	}
	flat := planar(v.Velocity)
	if speed := flat.Len(); speed > top {
		flat = flat.Mul(top / speed)
		v.Velocity = Vec3{flat.X(), v.Velocity.Y(), flat.Z()}
	}
}

// snapToGround keeps grounded vehicles on the terrain and lands airborne ones.
func (in *Integrator) snapToGround(v *Vehicle, ground float64) {
	rest := ground + GroundClearance
	gap := v.Position.Y() - rest

	if v.Timers.RampLaunchGrace > 0 && v.Velocity.Y() > 0 {
		v.Grounded = false
		return
	}

	tolerance := SnapToleranceAir
	if v.Grounded {
		tolerance = SnapToleranceDown
	}
	if gap > tolerance {
		v.Grounded = false
		return
	}

	if !v.Grounded {
		impact := -v.Velocity.Y()
		switch {
		case impact > LandingHardSpeed:
			v.Timers.Stun = math.Max(v.Timers.Stun, LandingHardStun)
			in.fx.Sound("land_hard", 90)
		case impact > LandingStunSpeed:
			v.Timers.Stun = math.Max(v.Timers.Stun, LandingStun)
			in.fx.Sound("land", 120)
		}
		in.fx.Particles(v.Position, "#c2b280", 8)
	}

	v.Position = Vec3{v.Position.X(), rest, v.Position.Z()}
	normal := in.track.NormalAt(v.Position.X(), v.Position.Z())
	if into := v.Velocity.Dot(normal); into < 0 {
		v.Velocity = v.Velocity.Sub(normal.Mul(into))
	}
	// stay glued to the slope instead of drifting upward
	v.Velocity = Vec3{v.Velocity.X(), math.Min(v.Velocity.Y(), slopeRise(in.track, v)), v.Velocity.Z()}
	v.Grounded = true
}

// slopeRise is the vertical speed that keeps a vehicle on the terrain
// given its planar velocity.
func slopeRise(t *track.Track, v *Vehicle) float64 {
	flat := planar(v.Velocity)
	speed := flat.Len()
	if speed < 1e-6 {
		return 0
	}
	dir := flat.Mul(1 / speed)
	p := v.Position
	h0 := t.HeightAt(p.X(), p.Z())
	h1 := t.HeightAt(p.X()+dir.X()*0.5, p.Z()+dir.Z()*0.5)
	return (h1 - h0) / 0.5 * speed
}

func finite(p Vec3) bool {
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
