package race

// Pose is the per-tick visual state handed to presentation.
type Pose struct {
	ID         string
	Index      int
	Position   Vec3
	Heading    float64
	Pitch      float64
	Roll       float64
	Steer      float64
	Grounded   bool
	Down       KnockState
	Shielded   bool
	Boosting   bool
	Respawning bool
	Visible    bool // false during respawn blink-off frames
}

// PresentationSink receives vehicle poses after each tick.
type PresentationSink interface {
	UpdateVehicle(p Pose)
}

// EffectsSink receives cosmetic one-shots. Implementations must not block.
type EffectsSink interface {
	Particles(pos Vec3, color string, count int)
	Sound(cue string, freq float64)
}

// MessageSink shows short player-facing messages.
type MessageSink interface {
	Show(text string, seconds float64)
}

// Sinks groups the outbound adapters. Nil fields are replaced by no-ops.
type Sinks struct {
	Presentation PresentationSink
	Effects      EffectsSink
	Messages     MessageSink
}

type nopSink struct{}

func (nopSink) UpdateVehicle(Pose)          {}
func (nopSink) Particles(Vec3, string, int) {}
func (nopSink) Sound(string, float64)       {}
func (nopSink) Show(string, float64)        {}

func (s Sinks) withDefaults() Sinks {
	if s.Presentation == nil {
		s.Presentation = nopSink{}
	}
	if s.Effects == nil {
		s.Effects = nopSink{}
	}
	if s.Messages == nil {
		s.Messages = nopSink{}
	}
	return s
}

func poseOf(v *Vehicle) Pose {
	visible := true
	if v.Respawning {
		// blink at 8 Hz while waiting to respawn
		visible = int(v.Timers.Respawn*16)%2 == 0
	}
	return Pose{
		ID:         v.ID,
		Index:      v.Index,
		Position:   v.Position,
		Heading:    v.Heading,
		Pitch:      v.Pitch,
		Roll:       v.Roll,
		Steer:      v.Steer,
		Grounded:   v.Grounded,
		Down:       v.Down,
		Shielded:   v.Shielded(),
		Boosting:   v.Timers.Boost > 0,
		Respawning: v.Respawning,
		Visible:    visible,
	}
}
