package race

import (
	"math"

	"kart-race/internal/track"
)

// Vec3 is shared with the track package.
type Vec3 = track.Vec3

// DriveMode selects forward or reverse gearing.
type DriveMode uint8

const (
	DriveForward DriveMode = iota
	DriveReverse
)

func (m DriveMode) String() string {
	if m == DriveReverse {
		return "reverse"
	}
	return "forward"
}

// KnockState is the knockdown state machine: Grounded -> Knockdown -> Recover -> Grounded.
type KnockState uint8

const (
	KnockNone KnockState = iota
	KnockDown
	KnockRecover
)

func (k KnockState) String() string {
	switch k {
	case KnockDown:
		return "knockdown"
	case KnockRecover:
		return "recover"
	default:
		return "grounded"
	}
}

// Profile holds AI personality weights, each roughly in [0, 1].
// SpeedBias is a signed fraction applied to the base speed.
type Profile struct {
	Name       string  `json:"name"`
	Aggression float64 `json:"aggression"`
	SpeedBias  float64 `json:"speedBias"`
	Risk       float64 `json:"risk"`
	Dodge      float64 `json:"dodge"`
}

// DefaultProfiles is the AI roster used when none is configured.
func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "bruiser", Aggression: 0.9, SpeedBias: -0.02, Risk: 0.6, Dodge: 0.4},
		{Name: "racer", Aggression: 0.3, SpeedBias: 0.06, Risk: 0.5, Dodge: 0.8},
		{Name: "trickster", Aggression: 0.6, SpeedBias: 0.02, Risk: 0.9, Dodge: 0.6},
		{Name: "cautious", Aggression: 0.15, SpeedBias: -0.04, Risk: 0.2, Dodge: 1.0},
		{Name: "hothead", Aggression: 1.0, SpeedBias: 0.0, Risk: 1.0, Dodge: 0.3},
	}
}

// Controller decides who produces a vehicle's control intent.
// Implementations: HumanController, AIController, RemoteController.
type Controller interface {
	controller()
}

// HumanController is the local player. When Autopilot is set the AI
// heuristics drive the player slot (headless runs).
type HumanController struct {
	Autopilot *Profile
}

// AIController drives a vehicle from heuristics.
type AIController struct {
	Profile Profile
}

// RemoteController marks an externally driven vehicle whose pose comes
// from network snapshots.
type RemoteController struct {
	PeerID string
}

func (HumanController) controller()  {}
func (AIController) controller()     {}
func (RemoteController) controller() {}

// Timers are countdowns in seconds, decremented once per tick.
type Timers struct {
	Knockdown       float64 `json:"knockdown"`
	Recover         float64 `json:"recover"`
	Stun            float64 `json:"stun"`
	Respawn         float64 `json:"respawn"`
	ItemHitCooldown float64 `json:"itemHitCooldown"`
	Boost           float64 `json:"boost"`
	Shield          float64 `json:"shield"`
	PunchCooldown   float64 `json:"punchCooldown"`
	Punch           float64 `json:"punch"`
	ItemCooldown    float64 `json:"itemCooldown"`
	RampLaunchGrace float64 `json:"rampLaunchGrace"`
	StealthCooldown float64 `json:"stealthCooldown"`
	Dust            float64 `json:"dust"`
}

// Tick decrements every countdown uniformly, stopping at zero.
func (t *Timers) Tick(dt float64) {
	for _, p := range []*float64{
		&t.Knockdown, &t.Recover, &t.Stun, &t.Respawn, &t.ItemHitCooldown,
		&t.Boost, &t.Shield, &t.PunchCooldown, &t.Punch, &t.ItemCooldown,
		&t.RampLaunchGrace, &t.StealthCooldown, &t.Dust,
	} {
		if *p > 0 {
			*p -= dt
			if *p < 0 {
				*p = 0
			}
		}
	}
}

// AIState is the per-vehicle memory of the decision engine.
type AIState struct {
	LaneBias      float64
	StuckTime     float64
	EscapePhase   int // 0 = not escaping, 1..3 = escape phases
	EscapeTimer   float64
	EscapeElapsed float64
	EscapeSide    float64
	EscapeStart   float64
	BehindTime    float64
	StealthCheck  float64
	StealthUses   int
}

// Vehicle is one racer. Vehicles are created at race start and persist
// until the race ends; finished and respawning vehicles stay as inert state.
type Vehicle struct {
	ID         string
	Name       string
	Index      int
	Color      string
	Controller Controller

	Position Vec3
	Velocity Vec3
	Heading  float64
	Pitch    float64
	Roll     float64

	Steer           float64
	TargetSteer     float64
	Throttle        float64
	ReverseThrottle float64
	Brake           float64
	Mode            DriveMode
	Grounded        bool
	TopSpeed        float64

	Progress       float64
	PrevProgress   float64
	TrackDist      float64
	GlobalProgress float64
	Checkpoint     int
	NextCheckpoint int
	Lap            int
	Finished       bool
	FinishTime     float64
	FinishPosition int

	Timers     Timers
	Down       KnockState
	ShieldHits int
	Item       ItemType

	Respawning       bool
	ForcedCheckpoint int
	Respawns         int
	MissWarned       bool
	InMud            bool
	ReverseHold      float64

	AI     AIState
	Remote RemoteState

	GridPosition Vec3
	GridHeading  float64

	rampCooldowns  []float64
	checkpointTick uint64
}

// IsPlayer reports whether this is the local human vehicle.
func (v *Vehicle) IsPlayer() bool {
	_, ok := v.Controller.(HumanController)
	return ok
}

// IsRemote reports whether the vehicle is externally driven.
func (v *Vehicle) IsRemote() bool {
	_, ok := v.Controller.(RemoteController)
	return ok
}

// Profile returns the AI profile driving the vehicle, if any.
func (v *Vehicle) Profile() (Profile, bool) {
	switch c := v.Controller.(type) {
	case AIController:
		return c.Profile, true
	case HumanController:
		if c.Autopilot != nil {
			return *c.Autopilot, true
		}
	}
	return Profile{}, false
}

// Forward is the horizontal heading direction.
func (v *Vehicle) Forward() Vec3 {
	return track.ForwardFromHeading(v.Heading)
}

// Right is the horizontal right vector.
func (v *Vehicle) Right() Vec3 {
	return track.RightOf(v.Forward())
}

// PlanarSpeed is the speed in the ground plane.
func (v *Vehicle) PlanarSpeed() float64 {
	return math.Hypot(v.Velocity.X(), v.Velocity.Z())
}

// ForwardSpeed is the signed speed along the heading.
func (v *Vehicle) ForwardSpeed() float64 {
	f := v.Forward()
	return v.Velocity.X()*f.X() + v.Velocity.Z()*f.Z()
}

// Shielded reports whether shield charges are available.
func (v *Vehicle) Shielded() bool {
	return v.ShieldHits > 0 && v.Timers.Shield > 0
}

// Active reports whether the vehicle takes part in collisions and hits.
func (v *Vehicle) Active() bool {
	return !v.Respawning && !v.Finished
}

// clearControls zeroes control intent.
func (v *Vehicle) clearControls() {
	v.Throttle = 0
	v.ReverseThrottle = 0
	v.Brake = 0
	v.TargetSteer = 0
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// wrapAngle maps an angle to [-Pi, Pi].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func planar(v Vec3) Vec3 {
	return Vec3{v.X(), 0, v.Z()}
}

// normalizeOr returns v normalized, or fallback when v is near zero.
func normalizeOr(v, fallback Vec3) Vec3 {
	l := v.Len()
	if l < 1e-9 || math.IsNaN(l) {
		return fallback
	}
	return v.Mul(1 / l)
}

func planarDistSq(a, b Vec3) float64 {
	dx := a.X() - b.X()
	dz := a.Z() - b.Z()
	return dx*dx + dz*dz
}
