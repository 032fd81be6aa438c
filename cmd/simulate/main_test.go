package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPrintsTable(t *testing.T) {
	var out bytes.Buffer
	err := run(options{Laps: 1, AICount: 2, Seed: 11, MaxTime: 5}, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "time limit")
	assert.Contains(t, text, "POS")
	assert.Contains(t, text, "Autopilot")
	assert.Equal(t, 6, strings.Count(text, "\n"), "summary, blank, column header and one row per vehicle")
}

func TestRunJSONAndArtifacts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping full simulation in short mode")
	}
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "map.png")
	eventsPath := filepath.Join(dir, "events.jsonl")

	var out bytes.Buffer
	err := run(options{
		Laps:       1,
		AICount:    3,
		Seed:       5,
		MaxTime:    8,
		JSON:       true,
		MinimapOut: pngPath,
		EventLog:   eventsPath,
	}, &out)
	require.NoError(t, err)

	var s summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &s))
	assert.Len(t, s.Results, 4)
	assert.Equal(t, uint64(8*120), s.Ticks)
	for i, r := range s.Results {
		assert.Equal(t, i+1, r.Rank)
	}

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	events, err := os.ReadFile(eventsPath)
	require.NoError(t, err)
	assert.Contains(t, string(events), `"type":"start"`)
}

func TestRunBadTrack(t *testing.T) {
	err := run(options{TrackFile: filepath.Join(t.TempDir(), "missing.json"), MaxTime: 1}, &bytes.Buffer{})
	assert.Error(t, err)
}
