package race

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"

	"kart-race/internal/race/spatial"
	"kart-race/internal/track"
)

var (
	ErrNilTrack         = errors.New("race: nil track")
	ErrNoPlayer         = errors.New("race: no human vehicle")
	ErrMultiplePlayers  = errors.New("race: more than one human vehicle")
	ErrDuplicateVehicle = errors.New("race: duplicate vehicle id")
	ErrUnknownVehicle   = errors.New("race: unknown vehicle")
	ErrQueueFull        = errors.New("race: command queue full")
)

// Grid and start constants
const (
	GridRowSpacing       = 6.0
	GridLaneFraction     = 0.35
	DefaultCountdown     = 3.0
	DefaultMaxSteps      = 8
	DefaultLaps          = 3
	playerID             = "player"
	countdownMessageTime = 0.9
)

var vehicleColors = []string{
	"#e63946", "#457b9d", "#2a9d8f", "#f4a261", "#9b5de5",
	"#00bbf9", "#fee440", "#f15bb5", "#8ac926", "#ff924c",
}

// Entrant describes one vehicle to place on the grid.
type Entrant struct {
	ID         string
	Name       string
	Color      string
	Controller Controller
}

// Config configures a race. Zero values pick defaults; Track is required.
type Config struct {
	Track    *track.Track
	Level    string
	Laps     int
	Tunables TunableTable

	// Entrants overrides the generated field (player, AI, remote peers).
	Entrants    []Entrant
	PlayerName  string
	Autopilot   *Profile
	AIProfiles  []Profile
	AICount     int
	RemotePeers []string

	Seed             int64
	CountdownSeconds float64
	MaxStepsPerFrame int
	MenuMode         bool
	Debug            bool
	Limits           Limits

	Sinks    Sinks
	EventLog *EventLog

	// Optional hooks, called on the simulation goroutine.
	OnRespawn    func(v *Vehicle, reason RespawnReason)
	OnCheckpoint func(v *Vehicle, checkpoint int)
	OnFinish     func(v *Vehicle, position int)
}

// Engine is the tick orchestrator. Step, Advance, SetInput and
// ApplyAction must be called from one goroutine; Submit and Snapshot are
// safe from any goroutine.
type Engine struct {
	cfg    Config
	track  *track.Track
	tun    Tunables
	rng    *rand.Rand
	sinks  Sinks
	events *EventLog

	physics *Integrator
	driver  *Driver
	referee *Referee
	combat  *Combat

	vehicles []*Vehicle
	ranked   []*Vehicle
	byID     map[string]*Vehicle
	player   *Vehicle
	input    Input

	tick        uint64
	raceTime    float64
	countdown   float64
	lastCount   int
	finished    bool
	finishers   int
	accumulator float64

	commands  *spatial.Queue[Command]
	drainBuf  []Command
	snapshots *SnapshotStore
}

// NewEngine validates the configuration, builds the components and places
// every vehicle on the starting grid.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Track == nil {
		return nil, ErrNilTrack
	}
	if len(cfg.Track.Points) < 2 || cfg.Track.TotalLength <= 0 {
		return nil, fmt.Errorf("%w: %q", track.ErrDegeneratePath, cfg.Track.Name)
	}
	if len(cfg.Track.Checkpoints) == 0 {
		return nil, fmt.Errorf("%w: %q", track.ErrNoCheckpoints, cfg.Track.Name)
	}
	if cfg.Laps < 1 {
		cfg.Laps = DefaultLaps
	}
	if !cfg.Track.Loop {
		cfg.Laps = 1
	}
	if cfg.Tunables == nil {
		cfg.Tunables = BuiltinTunables()
	}
	if cfg.Level == "" {
		cfg.Level = DefaultLevel
	}
	if cfg.CountdownSeconds < 0 {
		cfg.CountdownSeconds = 0
	}
	if cfg.MaxStepsPerFrame <= 0 {
		cfg.MaxStepsPerFrame = DefaultMaxSteps
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if len(cfg.AIProfiles) == 0 {
		cfg.AIProfiles = DefaultProfiles()
	}

	e := &Engine{
		cfg:       cfg,
		track:     cfg.Track,
		tun:       cfg.Tunables.Lookup(cfg.Level),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		sinks:     cfg.Sinks.withDefaults(),
		events:    cfg.EventLog,
		byID:      make(map[string]*Vehicle),
		countdown: cfg.CountdownSeconds,
		lastCount: -1,
		commands:  spatial.NewQueue[Command](cfg.Limits.CommandQueue),
		drainBuf:  make([]Command, 256),
		snapshots: NewSnapshotStore(),
	}

	entrants := cfg.Entrants
	if len(entrants) == 0 {
		entrants = e.defaultEntrants()
	}
	if err := e.addVehicles(entrants); err != nil {
		return nil, err
	}

	e.wire()
	e.placeGrid()
	e.rank()
	e.publish()
	if e.countdown == 0 {
		e.emit(EventTypeStart, nil, nil)
	}

	log.Info().
		Str("track", e.track.Name).
		Str("level", cfg.Level).
		Int("laps", cfg.Laps).
		Int("vehicles", len(e.vehicles)).
		Bool("menu", cfg.MenuMode).
		Msg("🏎️ Race created")
	return e, nil
}

func (e *Engine) defaultEntrants() []Entrant {
	var out []Entrant
	if !e.cfg.MenuMode {
		name := e.cfg.PlayerName
		if name == "" {
			name = "Player"
		}
		out = append(out, Entrant{ID: playerID, Name: name, Controller: HumanController{Autopilot: e.cfg.Autopilot}})
	}
	for i := 0; i < e.cfg.AICount; i++ {
		p := e.cfg.AIProfiles[i%len(e.cfg.AIProfiles)]
		out = append(out, Entrant{
			ID:         fmt.Sprintf("ai-%d", i+1),
			Name:       fmt.Sprintf("%s %d", p.Name, i+1),
			Controller: AIController{Profile: p},
		})
	}
	for _, peer := range e.cfg.RemotePeers {
		out = append(out, Entrant{ID: "remote-" + peer, Name: peer, Controller: RemoteController{PeerID: peer}})
	}
	return out
}

func (e *Engine) addVehicles(entrants []Entrant) error {
	players := 0
	for i, en := range entrants {
		if en.Controller == nil {
			en.Controller = AIController{Profile: e.cfg.AIProfiles[i%len(e.cfg.AIProfiles)]}
		}
		if en.ID == "" {
			en.ID = fmt.Sprintf("vehicle-%d", i+1)
		}
		if _, dup := e.byID[en.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateVehicle, en.ID)
		}
		if en.Color == "" {
			en.Color = vehicleColors[i%len(vehicleColors)]
		}
		v := &Vehicle{
			ID:               en.ID,
			Name:             en.Name,
			Index:            i,
			Color:            en.Color,
			Controller:       en.Controller,
			TopSpeed:         BaseTopSpeed,
			NextCheckpoint:   min(1, len(e.track.Checkpoints)-1),
			ForcedCheckpoint: -1,
			Grounded:         true,
		}
		if _, ok := en.Controller.(HumanController); ok {
			players++
			e.player = v
		}
		if _, ok := v.Profile(); ok {
			v.AI.LaneBias = e.rng.Float64()*0.6 - 0.3
			v.AI.StealthCheck = e.tun.StealthInterval * e.rng.Float64()
		}
		e.vehicles = append(e.vehicles, v)
		e.byID[v.ID] = v
	}
	switch {
	case players > 1:
		return ErrMultiplePlayers
	case players == 0 && !e.cfg.MenuMode:
		return ErrNoPlayer
	}
	return nil
}

// wire builds the components and hands each only the callbacks it needs.
func (e *Engine) wire() {
	vehicles := func() []*Vehicle { return e.vehicles }
	player := func() *Vehicle { return e.player }
	raceTime := func() float64 { return e.raceTime }
	emit := e.emit
	fx, msgs := e.sinks.Effects, e.sinks.Messages

	e.combat = NewCombat(e.track, &e.tun, e.rng, fx, e.cfg.Limits, CombatCaps{
		Vehicles: vehicles,
		RaceTime: raceTime,
		Emit:     emit,
	})
	for _, w := range e.combat.waves {
		e.combat.activate(w, 1+e.rng.Intn(maxCratesPerWave))
	}

	e.referee = NewReferee(e.track, &e.tun, e.rng, fx, msgs, e.cfg.Laps, e.cfg.MenuMode, RefereeCaps{
		Player:   player,
		RaceTime: raceTime,
		Tick:     func() uint64 { return e.tick },
		Emit:     emit,
		FinishPosition: func() int {
			e.finishers++
			return e.finishers
		},
		OnCheckpoint: e.cfg.OnCheckpoint,
		OnRespawn:    e.cfg.OnRespawn,
	})

	e.physics = NewIntegrator(e.track, &e.tun, fx, PhysicsCaps{
		Respawn:   e.referee.RequestRespawn,
		Knockdown: e.combat.Knockdown,
		Pickup:    e.combat.Pickup,
	}, e.cfg.MenuMode)

	e.driver = NewDriver(e.track, &e.tun, e.rng, e.cfg.Laps, e.cfg.MenuMode, DriverCaps{
		Vehicles:    vehicles,
		Player:      player,
		Hazards:     e.combat.Hazards,
		Obstacles:   e.physics.NearbyObstacles,
		Punch:       e.combat.Punch,
		PunchTarget: e.combat.PunchTarget,
		UseItem:     e.combat.UseItem,
		Respawn:     e.referee.RequestRespawn,
		RaceTime:    raceTime,
		Emit:        emit,
	})
}

// placeGrid lines vehicles up two-wide behind the start line.
func (e *Engine) placeGrid() {
	t := e.track
	start := t.Checkpoints[0]
	for i, v := range e.vehicles {
		row := i / 2
		lane := GridLaneFraction * t.HalfWidth
		if i%2 == 0 {
			lane = -lane
		}
		back := GridRowSpacing * float64(row+1)

		var base, fwd Vec3
		if t.Loop {
			sample := t.SampleAt(start.S - back)
			base, fwd = sample.Point, sample.Forward
		} else {
			base, fwd = start.Point.Sub(start.Forward.Mul(back)), start.Forward
		}
		p := base.Add(track.RightOf(fwd).Mul(lane))
		p = Vec3{p.X(), t.HeightAt(p.X(), p.Z()) + GroundClearance, p.Z()}

		v.GridPosition = p
		v.GridHeading = track.HeadingOf(fwd)
		v.Position = p
		v.Heading = v.GridHeading
		proj := t.ProjectGlobal(p.X(), p.Z())
		v.Progress = proj.S
		v.PrevProgress = proj.S
		v.TrackDist = math.Sqrt(proj.DistSq)
		v.GlobalProgress = e.referee.GlobalProgress(v)
	}
}

func (e *Engine) emit(t EventType, v *Vehicle, payload interface{}) {
	id := ""
	if v != nil {
		id = v.ID
	}
	e.events.EmitSimple(t, e.tick, id, payload)
}

// Step advances the race by one fixed step.
func (e *Engine) Step() {
	e.drainCommands()
	e.tick++
	dt := Dt

	locked := e.countdown > 0
	if locked {
		e.updateCountdown(dt)
	} else {
		// keeps running after the race is decided so late finishers get
		// their own times
		e.raceTime += dt
	}

	in := e.input
	for _, v := range e.vehicles {
		e.stepVehicle(v, &in, locked, dt)
	}

	if !locked {
		e.combat.resolveContacts()
		e.combat.updateProjectiles(dt)
		e.combat.updateHazards(dt)
		e.combat.updateWaves(dt)
	}

	e.rank()
	e.checkFinished()
	for _, v := range e.vehicles {
		e.sinks.Presentation.UpdateVehicle(poseOf(v))
	}
	e.publish()
	e.input.consumeOneShots()
}

func (e *Engine) stepVehicle(v *Vehicle, in *Input, locked bool, dt float64) {
	v.Timers.Tick(dt)
	if v.Timers.Shield <= 0 {
		v.ShieldHits = 0
	}
	if v.Respawning {
		e.referee.AdvanceRespawn(v)
		return
	}
	if v.Finished {
		return
	}
	advanceKnock(v)

	if locked {
		v.Position = v.GridPosition
		v.Heading = v.GridHeading
		v.Velocity = Vec3{}
		v.clearControls()
		return
	}

	prev := v.Position
	v.PrevProgress = v.Progress

	if v.IsRemote() {
		stepRemote(e.track, v, dt)
		e.referee.UpdateCheckpoints(v, prev)
		v.GlobalProgress = e.referee.GlobalProgress(v)
		return
	}

	var air *Input
	if p, ok := v.Profile(); ok {
		e.driver.DriveAI(v, p, dt)
		suppress(v)
		e.driver.Tactics(v, p)
	} else {
		e.driver.DriveHuman(v, *in, dt)
		if e.cfg.Debug {
			e.driver.applyDebug(v, *in, e.combat.Knockdown)
		}
		suppress(v)
		air = in
	}

	e.physics.Step(v, air, dt)

	if !v.Respawning {
		e.referee.UpdateCheckpoints(v, prev)
		e.referee.MissedCheckpoint(v)
	}
	e.driver.UpdateStuck(v, dt)
	v.GlobalProgress = e.referee.GlobalProgress(v)
	e.referee.UpdateStealth(v, dt)
}

func (e *Engine) updateCountdown(dt float64) {
	e.countdown -= dt
	n := int(math.Ceil(e.countdown))
	if n != e.lastCount && n > 0 {
		e.lastCount = n
		e.sinks.Messages.Show(fmt.Sprintf("%d", n), countdownMessageTime)
		e.sinks.Effects.Sound("countdown", 440)
	}
	if e.countdown <= 0 {
		e.countdown = 0
		e.sinks.Messages.Show("GO!", countdownMessageTime)
		e.sinks.Effects.Sound("go", 880)
		e.emit(EventTypeStart, nil, nil)
		log.Info().Uint64("tick", e.tick).Msg("🚦 Race started")
	}
}

// checkFinished ends the race when the human finishes, or when every
// locally simulated vehicle has finished in a race without a human.
func (e *Engine) checkFinished() {
	if e.finished {
		return
	}
	if e.player != nil {
		e.finished = e.player.Finished
	} else {
		done := true
		for _, v := range e.vehicles {
			if !v.IsRemote() && !v.Finished {
				done = false
				break
			}
		}
		e.finished = done && len(e.vehicles) > 0
	}
	if !e.finished {
		return
	}
	log.Info().
		Uint64("tick", e.tick).
		Float64("race_time", e.raceTime).
		Str("leader", e.ranked[0].ID).
		Msg("🏁 Race finished")
	if e.cfg.OnFinish != nil {
		for i, v := range e.ranked {
			if v.Finished {
				e.cfg.OnFinish(v, i+1)
			}
		}
	}
}

// Advance runs as many fixed steps as frameDt covers, at most
// MaxStepsPerFrame; time beyond the cap is dropped. It returns the steps
// run and the interpolation fraction of the remainder.
func (e *Engine) Advance(frameDt float64) (int, float64) {
	if frameDt > 0 && !math.IsInf(frameDt, 1) {
		e.accumulator += frameDt
	}
	steps := 0
	for e.accumulator >= Dt && steps < e.cfg.MaxStepsPerFrame {
		e.Step()
		e.accumulator -= Dt
		steps++
	}
	if e.accumulator >= Dt {
		e.accumulator = math.Mod(e.accumulator, Dt)
	}
	return steps, e.accumulator / Dt
}

// rank sorts finishers by finish time then finish order, the rest by
// global progress.
func (e *Engine) rank() {
	if cap(e.ranked) < len(e.vehicles) {
		e.ranked = make([]*Vehicle, len(e.vehicles))
	}
	e.ranked = e.ranked[:len(e.vehicles)]
	copy(e.ranked, e.vehicles)
	sort.SliceStable(e.ranked, func(i, j int) bool {
		a, b := e.ranked[i], e.ranked[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		if a.Finished {
			if a.FinishTime != b.FinishTime {
				return a.FinishTime < b.FinishTime
			}
			return a.FinishPosition < b.FinishPosition
		}
		return a.GlobalProgress > b.GlobalProgress
	})
}

// Rankings returns vehicles in race order.
func (e *Engine) Rankings() []*Vehicle {
	out := make([]*Vehicle, len(e.ranked))
	copy(out, e.ranked)
	return out
}

// SetInput merges a new input sample for the human vehicle. Held keys
// take the new value; one-shots stay queued until a tick consumes them.
func (e *Engine) SetInput(in Input) {
	e.input = e.input.merge(in)
}

// ApplyAction applies a one-shot action to a vehicle by id.
func (e *Engine) ApplyAction(id string, action ActionType) error {
	v, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownVehicle, id)
	}
	switch action {
	case ActionPunch:
		e.combat.Punch(v)
	case ActionUseItem:
		e.combat.UseItem(v)
	case ActionRespawn:
		e.referee.RequestRespawn(v, RespawnManual, -1)
	default:
		return fmt.Errorf("unsupported action %s", action)
	}
	return nil
}

// Submit queues a command for the next tick. Safe for concurrent use.
func (e *Engine) Submit(cmd Command) error {
	if !e.commands.TryPush(cmd) {
		return ErrQueueFull
	}
	return nil
}

func (e *Engine) drainCommands() {
	for {
		n := e.commands.DrainTo(e.drainBuf)
		for i := 0; i < n; i++ {
			e.handle(e.drainBuf[i])
			e.drainBuf[i] = Command{}
		}
		if n < len(e.drainBuf) {
			return
		}
	}
}

func (e *Engine) handle(cmd Command) {
	switch cmd.Kind {
	case CommandInput:
		if cmd.VehicleID == "" || (e.player != nil && cmd.VehicleID == e.player.ID) {
			e.SetInput(cmd.Input)
		}
	case CommandAction:
		if err := e.ApplyAction(cmd.VehicleID, cmd.Action); err != nil {
			log.Debug().Err(err).Str("vehicle", cmd.VehicleID).Msg("⚠️ Action rejected")
		}
	case CommandRemoteSnapshot:
		v, ok := e.byID[cmd.VehicleID]
		if !ok || !v.IsRemote() {
			log.Debug().Str("vehicle", cmd.VehicleID).Msg("⚠️ Snapshot for non-remote vehicle")
			return
		}
		applyRemoteSnapshot(v, cmd.Snapshot)
	}
}

func (e *Engine) publish() {
	s := &RaceSnapshot{
		Tick:        e.tick,
		Track:       e.track.Name,
		Laps:        e.cfg.Laps,
		RaceTime:    e.raceTime,
		Countdown:   e.countdown,
		Finished:    e.finished,
		Vehicles:    make([]VehicleSnapshot, len(e.ranked)),
		Projectiles: make([]ProjectileSnapshot, 0, len(e.combat.projectiles)),
		Hazards:     make([]HazardSnapshot, 0, len(e.combat.hazards)),
	}
	for i, v := range e.ranked {
		s.Vehicles[i] = snapshotVehicle(v, i+1)
	}
	for _, p := range e.combat.projectiles {
		s.Projectiles = append(s.Projectiles, ProjectileSnapshot{
			ID: p.ID, Kind: p.Kind.String(), X: p.Position.X(), Y: p.Position.Y(), Z: p.Position.Z(),
		})
	}
	for _, h := range e.combat.hazards {
		s.Hazards = append(s.Hazards, HazardSnapshot{ID: h.ID, Kind: h.Kind.String(), X: h.Position.X(), Z: h.Position.Z()})
	}
	for _, w := range e.combat.waves {
		if !w.Active {
			continue
		}
		for _, c := range w.Crates {
			if c.Active {
				s.Crates = append(s.Crates, CrateSnapshot{Item: c.Item.String(), X: c.Position.X(), Z: c.Position.Z()})
			}
		}
	}
	e.snapshots.Publish(s)
}

// Snapshot returns the latest published race state. Safe for concurrent use.
func (e *Engine) Snapshot() *RaceSnapshot {
	return e.snapshots.Latest()
}

// Tunables returns the effective thresholds for the race's level.
func (e *Engine) Tunables() Tunables { return e.tun }

func (e *Engine) Level() string        { return e.cfg.Level }
func (e *Engine) Vehicles() []*Vehicle { return e.vehicles }
func (e *Engine) Player() *Vehicle     { return e.player }
func (e *Engine) Track() *track.Track  { return e.track }
func (e *Engine) RaceTime() float64    { return e.raceTime }
func (e *Engine) Tick() uint64         { return e.tick }
func (e *Engine) Finished() bool       { return e.finished }
func (e *Engine) Countdown() float64   { return e.countdown }

// Vehicle looks a vehicle up by id.
func (e *Engine) Vehicle(id string) *Vehicle { return e.byID[id] }

// Projectiles and Hazards expose live combat objects.
func (e *Engine) Projectiles() []*Projectile { return e.combat.Projectiles() }
func (e *Engine) Hazards() []*GroundHazard   { return e.combat.Hazards() }
