package race

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kart-race/internal/track"
)

// featureTrack is straightTrack with extra features added by mutate.
func featureTrack(t *testing.T, mutate func(*track.Definition)) *track.Track {
	t.Helper()
	def := track.Definition{
		Name:              "features",
		Points:            []Vec3{{0, 0, 0}, {0, 0, 100}, {0, 0, 200}, {0, 0, 300}},
		HalfWidth:         8,
		CheckpointIndices: []int{0, 1, 2, 3},
	}
	mutate(&def)
	tr, err := track.Build(def)
	require.NoError(t, err)
	return tr
}

func countOf(cues []string, cue string) int {
	n := 0
	for _, c := range cues {
		if c == cue {
			n++
		}
	}
	return n
}

func TestRampLaunch(t *testing.T) {
	tr := featureTrack(t, func(d *track.Definition) {
		d.Ramps = []track.Ramp{{PathIndex: 1, Length: 6, Width: 6, LaunchSpeed: 10, MinApproach: 15, Cooldown: 1}}
	})
	e, rec := newTestEngine(t, tr, nil)
	v := e.Player()

	// too slow
	placeOn(e, v, 100, 0)
	v.Velocity = Vec3{0, 0, 10}
	e.physics.ramps(v)
	assert.True(t, v.Grounded)
	assert.Equal(t, 0.0, v.Velocity.Y())
	assert.Equal(t, 0.0, v.Timers.RampLaunchGrace)

	v.Velocity = Vec3{0, 0, 20}
	e.physics.ramps(v)
	require.False(t, v.Grounded)
	assert.Equal(t, 10.0, v.Velocity.Y())
	assert.InDelta(t, 20+5*RampCarryFactor, v.Velocity.Z(), 1e-9)
	assert.Equal(t, RampGrace, v.Timers.RampLaunchGrace)
	assert.Equal(t, 1, countOf(rec.sounds, "ramp"))

	// the ramp's cooldown blocks an immediate second launch
	placeOn(e, v, 100, 0)
	v.Velocity = Vec3{0, 0, 20}
	e.physics.ramps(v)
	assert.True(t, v.Grounded)
	assert.Equal(t, 0.0, v.Velocity.Y())
	assert.Equal(t, 1, countOf(rec.sounds, "ramp"))

	for i := 0; i < int(2/Dt); i++ {
		e.physics.ramps(v)
		if !v.Grounded {
			break
		}
	}
	assert.False(t, v.Grounded, "launches again once the cooldown runs out")
	assert.Equal(t, 2, countOf(rec.sounds, "ramp"))
}

func TestLaunchGraceSkipsGroundSnap(t *testing.T) {
	e, _ := newTestEngine(t, straightTrack(t), nil)
	v := e.Player()
	placeOn(e, v, 100, 0)
	v.Velocity = Vec3{0, 8, 20}
	v.Timers.RampLaunchGrace = RampGrace

	e.physics.snapToGround(v, 0)
	assert.False(t, v.Grounded)
	assert.Equal(t, 8.0, v.Velocity.Y())

	v.Timers.RampLaunchGrace = 0
	v.Grounded = true
	e.physics.snapToGround(v, 0)
	assert.True(t, v.Grounded)
	assert.InDelta(t, GroundClearance, v.Position.Y(), 1e-9)
	assert.LessOrEqual(t, v.Velocity.Y(), 8.0)
}

func TestLandingStun(t *testing.T) {
	tests := []struct {
		name   string
		impact float64
		stun   float64
		sound  string
	}{
		{"soft", 10, 0, ""},
		{"firm", 15, LandingStun, "land"},
		{"hard", 23, LandingHardStun, "land_hard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newTestEngine(t, straightTrack(t), nil)
			v := e.Player()
			placeOn(e, v, 100, 0)
			v.Grounded = false
			v.Position = Vec3{0, GroundClearance + 0.1, 100}
			v.Velocity = Vec3{0, -tt.impact, 10}

			e.physics.snapToGround(v, 0)
			require.True(t, v.Grounded)
			assert.Equal(t, tt.stun, v.Timers.Stun)
			landed := countOf(rec.sounds, "land") + countOf(rec.sounds, "land_hard")
			if tt.sound == "" {
				assert.Zero(t, landed)
			} else {
				assert.Equal(t, 1, landed)
				assert.Contains(t, rec.sounds, tt.sound)
			}
			assert.Equal(t, 0.0, v.Velocity.Y())
		})
	}
}

func TestObstaclePushOut(t *testing.T) {
	tests := []struct {
		name     string
		obstacle track.Obstacle
		at       Vec3
		want     Vec3
	}{
		{
			name:     "box side",
			obstacle: track.Obstacle{Kind: track.KindBarrier, Shape: track.ShapeBox, Position: Vec3{0, 0, 150}, HalfX: 2, HalfZ: 4, Height: 1.5},
			at:       Vec3{2.5, GroundClearance, 151},
			want:     Vec3{3.1, GroundClearance, 151},
		},
		{
			name:     "box front",
			obstacle: track.Obstacle{Kind: track.KindBarrier, Shape: track.ShapeBox, Position: Vec3{0, 0, 150}, HalfX: 2, HalfZ: 4, Height: 1.5},
			at:       Vec3{0.5, GroundClearance, 145.5},
			want:     Vec3{0.5, GroundClearance, 144.9},
		},
		{
			name:     "rotated box",
			obstacle: track.Obstacle{Kind: track.KindBarrier, Shape: track.ShapeBox, Position: Vec3{0, 0, 150}, Yaw: math.Pi / 2, HalfX: 2, HalfZ: 4, Height: 1.5},
			at:       Vec3{1, GroundClearance, 152.5},
			want:     Vec3{1, GroundClearance, 153.1},
		},
		{
			name:     "sphere",
			obstacle: track.Obstacle{Kind: track.KindRock, Shape: track.ShapeSphere, Position: Vec3{0, 0, 150}, Radius: 1},
			at:       Vec3{1.5, GroundClearance, 150},
			want:     Vec3{2.1, GroundClearance, 150},
		},
		{
			name:     "clear",
			obstacle: track.Obstacle{Kind: track.KindRock, Shape: track.ShapeSphere, Position: Vec3{0, 0, 150}, Radius: 1},
			at:       Vec3{2.2, GroundClearance, 150},
			want:     Vec3{2.2, GroundClearance, 150},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := featureTrack(t, func(d *track.Definition) { d.Obstacles = []track.Obstacle{tt.obstacle} })
			e, _ := newTestEngine(t, tr, nil)
			v := e.Player()
			placeOn(e, v, 150, 0)
			v.Position = tt.at

			e.physics.collideObstacles(v)
			assert.InDelta(t, tt.want.X(), v.Position.X(), 1e-9)
			assert.InDelta(t, tt.want.Z(), v.Position.Z(), 1e-9)
			assert.Equal(t, KnockNone, v.Down)
		})
	}
}

func TestObstacleImpactKnockdown(t *testing.T) {
	tests := []struct {
		name string
		kind track.ObstacleKind
		down bool
	}{
		{"barrier", track.KindBarrier, true},
		{"edge", track.KindEdge, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := featureTrack(t, func(d *track.Definition) {
				d.Obstacles = []track.Obstacle{{Kind: tt.kind, Shape: track.ShapeBox, Position: Vec3{0, 0, 150}, HalfX: 6, HalfZ: 4, Height: 1.5, CrashWeight: 1}}
			})
			e, rec := newTestEngine(t, tr, nil)
			v := e.Player()
			placeOn(e, v, 145, 0)
			v.Position = Vec3{0, GroundClearance, 150 - 4 - VehicleRadius + 0.2}
			v.Velocity = Vec3{0, 0, 30}

			e.physics.collideObstacles(v)
			assert.Less(t, v.Velocity.Z(), 0.0, "bounced back")
			assert.Contains(t, rec.sounds, "crash")
			if tt.down {
				assert.Equal(t, KnockDown, v.Down)
			} else {
				assert.Equal(t, KnockNone, v.Down)
			}
		})
	}
}

func TestBoostPadRetrigger(t *testing.T) {
	tr := featureTrack(t, func(d *track.Definition) {
		d.BoostPads = []track.BoostPad{{PathIndex: 1, Radius: 2, Duration: 2}}
	})
	e, rec := newTestEngine(t, tr, nil)
	v := e.Player()
	placeOn(e, v, 100, 0)

	e.physics.boostPads(v)
	assert.Equal(t, 2.0, v.Timers.Boost)

	// more than half left
	v.Timers.Boost = 1.5
	e.physics.boostPads(v)
	assert.Equal(t, 1.5, v.Timers.Boost)

	v.Timers.Boost = 0.8
	e.physics.boostPads(v)
	assert.Equal(t, 2.0, v.Timers.Boost)
	assert.Equal(t, 2, countOf(rec.sounds, "boost"))

	// off the pad
	placeOn(e, v, 110, 0)
	v.Timers.Boost = 0
	e.physics.boostPads(v)
	assert.Equal(t, 0.0, v.Timers.Boost)
}

func TestMudSlowsAndKicksDust(t *testing.T) {
	run := func(lateral float64) *Vehicle {
		e, _ := newTestEngine(t, straightTrack(t), nil)
		v := e.Player()
		placeOn(e, v, 100, lateral)
		v.Velocity = Vec3{0, 0, 20}
		e.physics.Step(v, nil, Dt)
		return v
	}

	clean := run(0)
	assert.False(t, clean.InMud)
	assert.Equal(t, 0.0, clean.Timers.Dust)

	mud := run(8*MudFactor + 1)
	require.True(t, mud.InMud)
	assert.False(t, mud.Respawning)
	assert.Equal(t, DustInterval, mud.Timers.Dust)
	assert.Less(t, mud.Velocity.Z(), clean.Velocity.Z())
}
