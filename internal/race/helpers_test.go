package race

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kart-race/internal/track"
)

// recorder captures sink calls.
type recorder struct {
	messages []string
	sounds   []string
	poses    map[string]Pose
}

func newRecorder() *recorder {
	return &recorder{poses: make(map[string]Pose)}
}

func (r *recorder) UpdateVehicle(p Pose)        { r.poses[p.ID] = p }
func (r *recorder) Particles(Vec3, string, int) {}
func (r *recorder) Sound(cue string, _ float64) { r.sounds = append(r.sounds, cue) }
func (r *recorder) Show(text string, _ float64) { r.messages = append(r.messages, text) }
func (r *recorder) sinks() Sinks                { return Sinks{Presentation: r, Effects: r, Messages: r} }

// straightTrack is a 300 m open track along +Z with gates every 100 m.
func straightTrack(t *testing.T) *track.Track {
	t.Helper()
	tr, err := track.Build(track.Definition{
		Name:              "straight",
		Points:            []Vec3{{0, 0, 0}, {0, 0, 100}, {0, 0, 200}, {0, 0, 300}},
		HalfWidth:         8,
		CheckpointIndices: []int{0, 1, 2, 3},
	})
	require.NoError(t, err)
	return tr
}

// squareLoop is an 800 m closed square with a gate at each corner and an
// item anchor on the second corner.
func squareLoop(t *testing.T) *track.Track {
	t.Helper()
	tr, err := track.Build(track.Definition{
		Name:              "square",
		Points:            []Vec3{{0, 0, 0}, {0, 0, 200}, {200, 0, 200}, {200, 0, 0}},
		Loop:              true,
		HalfWidth:         8,
		CheckpointIndices: []int{0, 1, 2, 3},
		ItemAnchors:       []track.ItemAnchor{{PathIndex: 1}},
	})
	require.NoError(t, err)
	return tr
}

func newTestEngine(t *testing.T, tr *track.Track, mutate func(*Config)) (*Engine, *recorder) {
	t.Helper()
	rec := newRecorder()
	cfg := Config{
		Track: tr,
		Laps:  2,
		Seed:  7,
		Sinks: rec.sinks(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e, rec
}

// placeOn puts v on the route at path-distance s with the given lateral
// offset, stationary and facing down the route.
func placeOn(e *Engine, v *Vehicle, s, lateral float64) {
	sample := e.track.SampleAt(s)
	p := sample.Point.Add(track.RightOf(sample.Forward).Mul(lateral))
	v.Position = Vec3{p.X(), GroundClearance, p.Z()}
	v.Heading = track.HeadingOf(sample.Forward)
	v.Velocity = Vec3{}
	v.Grounded = true
	v.Progress = e.track.Wrap(s)
	v.PrevProgress = v.Progress
	v.TrackDist = lateral
	if lateral < 0 {
		v.TrackDist = -lateral
	}
}
