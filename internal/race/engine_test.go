package race

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kart-race/internal/track"
)

func TestNewEngineValidation(t *testing.T) {
	tr := straightTrack(t)
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{"nil track", Config{}, ErrNilTrack},
		{"no player", Config{Track: tr, Entrants: []Entrant{{ID: "a", Controller: AIController{}}}}, ErrNoPlayer},
		{"two players", Config{Track: tr, Entrants: []Entrant{
			{ID: "a", Controller: HumanController{}},
			{ID: "b", Controller: HumanController{}},
		}}, ErrMultiplePlayers},
		{"duplicate id", Config{Track: tr, Entrants: []Entrant{
			{ID: "a", Controller: HumanController{}},
			{ID: "a", Controller: AIController{}},
		}}, ErrDuplicateVehicle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNewEngineDefaults(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) {
		c.AICount = 3
		c.RemotePeers = []string{"p1"}
		c.Level = "canyon"
	})

	require.Len(t, e.Vehicles(), 5)
	assert.True(t, e.Player().IsPlayer())
	assert.True(t, e.Vehicle("remote-p1").IsRemote())
	assert.Equal(t, 2.4, e.Tunables().OffTrackRespawnFactor)

	// two-wide grid behind the start line
	start := e.track.Checkpoints[0]
	for i, v := range e.Vehicles() {
		assert.Less(t, v.GlobalProgress, 0.0, "vehicle %d", i)
		assert.InDelta(t, GridLaneFraction*e.track.HalfWidth, v.TrackDist, 1e-6, "vehicle %d", i)
		assert.Equal(t, 0, v.Checkpoint)
		assert.Equal(t, 1, v.NextCheckpoint)
		assert.Equal(t, track.HeadingOf(e.track.SampleAt(v.Progress).Forward), v.Heading)
	}
	assert.Less(t, planarDistSq(e.Vehicles()[0].Position, start.Point), planarDistSq(e.Vehicles()[4].Position, start.Point))

	snap := e.Snapshot()
	require.NotNil(t, snap)
	assert.Len(t, snap.Vehicles, 5)
	assert.NotEmpty(t, snap.Crates)
}

func TestMenuModeAllowsNoPlayer(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) {
		c.MenuMode = true
		c.AICount = 2
	})
	assert.Nil(t, e.Player())
	assert.Len(t, e.Vehicles(), 2)
}

func TestRankings(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) { c.AICount = 3 })
	vs := e.Vehicles()
	vs[0].GlobalProgress = 100
	vs[1].GlobalProgress = 300
	vs[2].Finished, vs[2].FinishTime = true, 90
	vs[3].Finished, vs[3].FinishTime = true, 80

	e.rank()
	got := e.Rankings()
	assert.Equal(t, []*Vehicle{vs[3], vs[2], vs[1], vs[0]}, got)

	// callers get a copy
	got[0] = nil
	assert.NotNil(t, e.Rankings()[0])

	// same finish tick: finish order decides
	vs[2].FinishTime, vs[2].FinishPosition = 80, 1
	vs[3].FinishPosition = 2
	e.rank()
	assert.Equal(t, []*Vehicle{vs[2], vs[3], vs[1], vs[0]}, e.Rankings())
}

// TestLateFinisherGetsOwnTime checks that the clock keeps running after
// the human finishes, so AI finishing later rank behind with later times.
func TestLateFinisherGetsOwnTime(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) {
		c.AICount = 1
		c.Laps = 1
	})
	p := e.Player()
	ai := e.Vehicle("ai-1")
	e.raceTime = 10

	for i := 0; i < len(e.track.Checkpoints) && !p.Finished; i++ {
		e.referee.advance(p)
	}
	require.True(t, p.Finished)
	e.Step()
	require.True(t, e.Finished())

	for i := 0; i < int(5/Dt); i++ {
		e.Step()
	}
	for i := 0; i < 2*len(e.track.Checkpoints) && !ai.Finished; i++ {
		e.referee.advance(ai)
	}
	require.True(t, ai.Finished)

	assert.InDelta(t, 10.0, p.FinishTime, 1e-9)
	assert.Greater(t, ai.FinishTime, p.FinishTime+4.9)
	assert.Equal(t, 1, p.FinishPosition)
	assert.Equal(t, 2, ai.FinishPosition)

	e.rank()
	assert.Equal(t, []*Vehicle{p, ai}, e.Rankings())
}

func TestAdvanceAccumulator(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) { c.MaxStepsPerFrame = 8 })

	steps, alpha := e.Advance(Dt / 2)
	assert.Equal(t, 0, steps)
	assert.InDelta(t, 0.5, alpha, 1e-9)

	steps, alpha = e.Advance(Dt / 2)
	assert.Equal(t, 1, steps)
	assert.InDelta(t, 0, alpha, 1e-9)
	assert.Equal(t, uint64(1), e.Tick())

	steps, _ = e.Advance(2 * Dt)
	assert.Equal(t, 2, steps)

	// a long stall is capped and the surplus dropped
	steps, alpha = e.Advance(1.0)
	assert.Equal(t, 8, steps)
	assert.GreaterOrEqual(t, alpha, 0.0)
	assert.Less(t, alpha, 1.0)
	steps, _ = e.Advance(0)
	assert.Equal(t, 0, steps)

	steps, _ = e.Advance(-1)
	assert.Equal(t, 0, steps)
	assert.Equal(t, uint64(11), e.Tick())
}

func TestCountdownHoldsGrid(t *testing.T) {
	e, rec := newTestEngine(t, squareLoop(t), func(c *Config) { c.CountdownSeconds = 1 })
	v := e.Player()
	grid := v.GridPosition

	for i := 0; i < int(0.5/Dt); i++ {
		e.SetInput(Input{Forward: true})
		e.Step()
	}
	assert.Equal(t, grid, v.Position)
	assert.Equal(t, 0.0, e.RaceTime())
	assert.Greater(t, e.Countdown(), 0.0)

	for i := 0; i < int(1/Dt); i++ {
		e.SetInput(Input{Forward: true})
		e.Step()
	}
	assert.Equal(t, 0.0, e.Countdown())
	assert.Greater(t, e.RaceTime(), 0.0)
	assert.Contains(t, rec.messages, "1")
	assert.Contains(t, rec.messages, "GO!")
	assert.NotEqual(t, grid, v.Position)
}

func TestApplyAction(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) { c.AICount = 1 })
	v := e.Vehicle("ai-1")
	v.Item = ItemShield

	require.NoError(t, e.ApplyAction("ai-1", ActionUseItem))
	assert.Equal(t, MaxShieldHits, v.ShieldHits)

	require.NoError(t, e.ApplyAction("ai-1", ActionRespawn))
	assert.True(t, v.Respawning)

	assert.ErrorIs(t, e.ApplyAction("nobody", ActionPunch), ErrUnknownVehicle)
	assert.Error(t, e.ApplyAction("ai-1", ActionNone))
}

func TestSubmitInputAndActions(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) { c.AICount = 1 })
	require.NoError(t, e.Submit(Command{Kind: CommandInput, Input: Input{Forward: true, Punch: true}}))
	e.Vehicle("ai-1").Item = ItemTurbo
	require.NoError(t, e.Submit(Command{Kind: CommandAction, VehicleID: "ai-1", Action: ActionUseItem}))

	e.Step()
	assert.True(t, e.input.Forward, "held keys persist")
	assert.False(t, e.input.Punch, "one-shots are consumed")
	assert.Equal(t, ItemNone, e.Vehicle("ai-1").Item)
	assert.Greater(t, e.Player().Throttle, 0.0)
}

func TestInputMergeKeepsOneShots(t *testing.T) {
	in := Input{Punch: true, Forward: true}
	in = in.merge(Input{Left: true})
	assert.True(t, in.Punch)
	assert.False(t, in.Forward)
	assert.True(t, in.Left)

	in.consumeOneShots()
	assert.False(t, in.Punch)
	assert.True(t, in.Left)
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want ActionType
		err  bool
	}{
		{"punch", ActionPunch, false},
		{" Item ", ActionUseItem, false},
		{"use_item", ActionUseItem, false},
		{"respawn", ActionRespawn, false},
		{"fly", ActionNone, true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.err, err != nil, tt.in)
	}
}

func TestRemoteSnapshots(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) { c.RemotePeers = []string{"p1"} })
	v := e.Vehicle("remote-p1")
	at := Vec3{1, GroundClearance, 20}

	require.NoError(t, e.Submit(Command{Kind: CommandRemoteSnapshot, VehicleID: v.ID, Snapshot: RemoteSnapshot{Seq: 5, Position: at}}))
	e.Step()
	assert.Equal(t, uint64(5), v.Remote.LastSeq)
	assert.Equal(t, at, v.Remote.Target)

	stale := RemoteSnapshot{Seq: 3, Position: Vec3{50, 0, 50}}
	require.NoError(t, e.Submit(Command{Kind: CommandRemoteSnapshot, VehicleID: v.ID, Snapshot: stale}))
	e.Step()
	assert.Equal(t, uint64(5), v.Remote.LastSeq)
	assert.Equal(t, at, v.Remote.Target)

	assert.False(t, applyRemoteSnapshot(v, RemoteSnapshot{Seq: 9, Position: Vec3{math.NaN(), 0, 0}}))

	// snapshots for local vehicles are ignored
	require.NoError(t, e.Submit(Command{Kind: CommandRemoteSnapshot, VehicleID: "player", Snapshot: RemoteSnapshot{Seq: 1, Position: at}}))
	e.Step()
	assert.False(t, e.Player().Remote.Have)
}

func TestRemoteBlendsTowardTarget(t *testing.T) {
	e, _ := newTestEngine(t, squareLoop(t), func(c *Config) { c.RemotePeers = []string{"p1"} })
	v := e.Vehicle("remote-p1")
	placeOn(e, v, 20, 0)
	target := v.Position.Add(Vec3{0, 0, 4})
	require.True(t, applyRemoteSnapshot(v, RemoteSnapshot{Seq: 1, Position: target}))

	before := v.Position.Sub(target).Len()
	stepRemote(e.track, v, Dt)
	assert.Less(t, v.Position.Sub(target).Len(), before)

	far := v.Position.Add(Vec3{0, 0, RemoteSnapDistance + 5})
	require.True(t, applyRemoteSnapshot(v, RemoteSnapshot{Seq: 2, Position: far, Heading: 1}))
	stepRemote(e.track, v, Dt)
	assert.Equal(t, far, v.Position)
	assert.Equal(t, 1.0, v.Heading)
}

// TestAutopilotRace runs an all-AI race on the demo circuit and checks
// the field stays finite and makes progress.
func TestAutopilotRace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping race run in short mode")
	}
	profiles := DefaultProfiles()
	e, rec := newTestEngine(t, track.DemoCircuit(), func(c *Config) {
		c.AICount = 5
		c.Autopilot = &profiles[1]
	})

	for i := 0; i < int(10/Dt); i++ {
		e.Step()
	}
	for _, v := range e.Vehicles() {
		require.True(t, finite(v.Position), v.ID)
		require.True(t, finite(v.Velocity), v.ID)
	}
	assert.Greater(t, e.Rankings()[0].GlobalProgress, 20.0)
	assert.Len(t, rec.poses, 6)

	snap := e.Snapshot()
	require.NotNil(t, snap)
	for i, vs := range snap.Vehicles {
		assert.Equal(t, i+1, vs.Rank)
	}
	assert.Equal(t, e.Tick(), snap.Tick)
}

func TestTimersTickUniformly(t *testing.T) {
	var tm Timers
	tm.Knockdown, tm.Boost, tm.Shield, tm.Respawn = 1, 0.5, Dt/2, 0
	tm.Tick(0.25)
	assert.InDelta(t, 0.75, tm.Knockdown, 1e-12)
	assert.InDelta(t, 0.25, tm.Boost, 1e-12)
	assert.Equal(t, 0.0, tm.Shield)
	assert.Equal(t, 0.0, tm.Respawn)
}

func TestTunablesLookup(t *testing.T) {
	table := BuiltinTunables()
	assert.Equal(t, DefaultTunables(), table.Lookup("nope"))
	assert.Equal(t, 2.4, table.Lookup("canyon").OffTrackRespawnFactor)
	assert.Equal(t, DefaultTunables(), TunableTable{}.Lookup("canyon"))
	assert.Equal(t, 0, DefaultTunables().StealthMaxUses, "unlimited stealth by default")
}
