package minimap

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kart-race/internal/race"
	"kart-race/internal/track"
)

func TestProjectKeepsTrackInFrame(t *testing.T) {
	tr := track.DemoCircuit()
	r := NewRecorder(tr, 256)

	for _, p := range tr.Points {
		x, y := r.project(p.X(), p.Z())
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 256.0)
		assert.GreaterOrEqual(t, y, 0.0)
		assert.LessOrEqual(t, y, 256.0)
	}
}

func TestProjectPointsZUp(t *testing.T) {
	r := NewRecorder(track.DemoCircuit(), 0)
	_, yLow := r.project(0, -10)
	_, yHigh := r.project(0, 10)
	assert.Less(t, yHigh, yLow)
	assert.Equal(t, DefaultSize, r.size)
}

func TestRecorderKeepsLatestPose(t *testing.T) {
	r := NewRecorder(track.DemoCircuit(), 128)
	r.UpdateVehicle(race.Pose{ID: "a", Position: race.Vec3{1, 0, 1}, Visible: true})
	r.UpdateVehicle(race.Pose{ID: "a", Position: race.Vec3{5, 0, 5}, Visible: true})
	r.UpdateVehicle(race.Pose{ID: "b", Visible: false})

	poses := r.Poses()
	require.Len(t, poses, 2)
	assert.Equal(t, race.Vec3{5, 0, 5}, poses["a"].Position)
}

// TestWritePNGFromRace renders a live engine through the recorder.
func TestWritePNGFromRace(t *testing.T) {
	tr := track.DemoCircuit()
	rec := NewRecorder(tr, 200)

	e, err := race.NewEngine(race.Config{
		Track:    tr,
		MenuMode: true,
		AICount:  3,
		Seed:     1,
		Sinks:    race.Sinks{Presentation: rec},
	})
	require.NoError(t, err)
	for i := 0; i < 120; i++ {
		e.Step()
	}
	assert.Len(t, rec.Poses(), 3)

	var buf bytes.Buffer
	require.NoError(t, rec.WritePNG(&buf, e.Snapshot()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want [3]uint8
	}{
		{"#e63946", [3]uint8{0xe6, 0x39, 0x46}},
		{"", [3]uint8{255, 255, 255}},
		{"red", [3]uint8{255, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c := parseHexColor(tt.in)
			assert.Equal(t, tt.want, [3]uint8{c.R, c.G, c.B})
		})
	}
}
