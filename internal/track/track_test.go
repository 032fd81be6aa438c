package track

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectsBadPaths(t *testing.T) {
	tests := []struct {
		name   string
		points []Vec3
		err    error
	}{
		{"empty", nil, ErrEmptyPath},
		{"single point", []Vec3{{1, 0, 1}}, ErrEmptyPath},
		{"zero length", []Vec3{{1, 0, 1}, {1, 5, 1}}, ErrDegeneratePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(Definition{Points: tt.points, HalfWidth: 5})
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestBuildClampsAndAudits(t *testing.T) {
	tr, err := Build(Definition{
		Name:              "clamps",
		Points:            []Vec3{{0, 0, 0}, {0, 0, 50}, {0, 0, 100}},
		HalfWidth:         -1,
		CheckpointIndices: []int{0, 7},
		Ramps:             []Ramp{{PathIndex: 1, LaunchSpeed: 500, Length: 6, Width: 4, Cooldown: 1}},
		BoostPads:         []BoostPad{{PathIndex: -3, Radius: 2, Duration: 99}},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultHalfWidth, tr.HalfWidth)
	assert.Equal(t, []int{0, 2}, tr.CheckpointIndices)
	assert.Equal(t, 30.0, tr.Ramps[0].LaunchSpeed)
	assert.Equal(t, 0, tr.BoostPads[0].PathIndex)
	assert.Equal(t, 4.0, tr.BoostPads[0].Duration)

	fields := map[string]bool{}
	for _, a := range tr.Audit {
		fields[a.Kind+"."+a.Field] = true
	}
	assert.True(t, fields["track.halfWidth"])
	assert.True(t, fields["checkpoint.pathIndex"])
	assert.True(t, fields["ramp.launchSpeed"])
	assert.True(t, fields["boostPad.pathIndex"])
	assert.True(t, fields["boostPad.duration"])
}

func TestBuildSplitsWideLoopSectors(t *testing.T) {
	// 800 m square loop, one point every 100 m
	tr, err := Build(Definition{
		Name: "wide",
		Points: []Vec3{
			{0, 0, 0}, {0, 0, 100}, {0, 0, 200}, {100, 0, 200},
			{200, 0, 200}, {200, 0, 100}, {200, 0, 0}, {100, 0, 0},
		},
		Loop:              true,
		HalfWidth:         8,
		CheckpointIndices: []int{0, 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 4}, tr.CheckpointIndices)
	for i, cp := range tr.Checkpoints {
		next := tr.TotalLength
		if i+1 < len(tr.Checkpoints) {
			next = tr.Checkpoints[i+1].S
		}
		assert.LessOrEqual(t, next-cp.S, tr.TotalLength/2, "sector %d", i)
	}

	gaps := 0
	for _, a := range tr.Audit {
		if a.Kind == "checkpoint" && a.Field == "gap" {
			gaps++
		}
	}
	assert.Equal(t, 1, gaps)
}

func TestBuildCheckpointsAddsStartAndFinish(t *testing.T) {
	tr, err := Build(Definition{
		Points:            []Vec3{{0, 0, 0}, {0, 0, 30}, {0, 0, 60}, {0, 0, 90}},
		HalfWidth:         5,
		CheckpointIndices: []int{2, 1},
	})
	require.NoError(t, err)

	// 1 is out of order and dropped, start and finish are added
	assert.Equal(t, []int{0, 2, 3}, tr.CheckpointIndices)
	require.Len(t, tr.Checkpoints, 3)
	assert.InDelta(t, 60, tr.Checkpoints[1].S, 1e-9)
	assert.InDelta(t, 5*GateWidthFactor, tr.Checkpoints[1].GateHalfWidth, 1e-9)
}

func TestBuildGeneratesCheckpoints(t *testing.T) {
	tr, err := Build(Definition{
		Points:    []Vec3{{0, 0, 0}, {0, 0, 100}, {100, 0, 100}, {100, 0, 0}},
		Loop:      true,
		HalfWidth: 5,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(tr.Checkpoints), 2)
	assert.Equal(t, 0, tr.CheckpointIndices[0])
}

func TestDemoCircuit(t *testing.T) {
	tr := DemoCircuit()

	assert.True(t, tr.Loop)
	assert.Len(t, tr.Checkpoints, 8)
	assert.Len(t, tr.Ramps, 2)
	assert.Len(t, tr.BoostPads, 2)
	assert.Len(t, tr.ItemAnchors, 3)
	assert.NotEmpty(t, tr.Obstacles)
	assert.Empty(t, tr.Audit)
	for i := 1; i < len(tr.Checkpoints); i++ {
		assert.Greater(t, tr.Checkpoints[i].S, tr.Checkpoints[i-1].S)
	}
}

func TestParsePath(t *testing.T) {
	flat := func(x, z float64) float64 { return 2 }

	pts, err := ParsePath("LINESTRING(0 0, 0 10, 5 20)", flat)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, Vec3{5, 2, 20}, pts[2])

	pts, err = ParsePath("LINESTRING Z (0 0 1, 0 10 3)", flat)
	require.NoError(t, err)
	assert.Equal(t, Vec3{0, 3, 10}, pts[1])

	_, err = ParsePath("POINT(1 2)", flat)
	assert.Error(t, err)

	_, err = ParsePath("not wkt", flat)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.json")
	content := `{
		"name": "file-loop",
		"loop": true,
		"halfWidth": 7,
		"path": "LINESTRING(0 0, 0 100, 100 100, 100 0)",
		"checkpoints": [0, 1, 2, 3],
		"ramps": [{"pathIndex": 1, "length": 5, "width": 5, "launchSpeed": 8, "minApproach": 10, "cooldown": 1}],
		"ground": {"base": 1, "bumps": [{"x": 50, "z": 50, "radius": 20, "height": 3}]},
		"obstacles": [{"kind": "rock", "shape": 1, "position": [10, 0, 10], "radius": 1, "crashWeight": 1}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tr, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file-loop", tr.Name)
	assert.InDelta(t, 400, tr.TotalLength, 1e-9)
	assert.InDelta(t, 1, tr.HeightAt(0, 0), 1e-9)
	assert.InDelta(t, 4, tr.HeightAt(50, 50), 1e-9)
	assert.Len(t, tr.Obstacles, 1)
	assert.Equal(t, KindRock, tr.Obstacles[0].Kind)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
