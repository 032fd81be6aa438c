package race

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el := NewEventLog()
	require.NoError(t, el.Start(path))

	assert.True(t, el.EmitSimple(EventTypeCheckpoint, 10, "player", CheckpointPayload{Checkpoint: 1, Lap: 0, RaceTime: 1.5}))
	assert.True(t, el.EmitSimple(EventTypeRespawn, 11, "ai-1", RespawnPayload{Reason: RespawnStuck.String(), Checkpoint: -1}))
	assert.True(t, el.EmitSimple(EventTypeFinish, 12, "player", FinishPayload{Position: 1, RaceTime: 60}))
	el.Stop()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "checkpoint", lines[0]["type"])
	assert.Equal(t, "respawn", lines[1]["type"])
	assert.Equal(t, "finish", lines[2]["type"])
	assert.Equal(t, float64(1), lines[0]["sequence"])
	assert.Equal(t, "stuck", lines[1]["payload"].(map[string]interface{})["reason"])

	assert.Equal(t, uint64(3), el.TotalCount())
	assert.Equal(t, uint64(0), el.DroppedCount())
}

func TestEventLogNilAndStoppedDrop(t *testing.T) {
	var nilLog *EventLog
	assert.False(t, nilLog.EmitSimple(EventTypeStart, 0, "", nil))

	el := NewEventLog()
	assert.False(t, el.EmitSimple(EventTypeStart, 0, "", nil), "not started")

	require.NoError(t, el.Start(""))
	assert.True(t, el.EmitSimple(EventTypeStart, 0, "", nil))
	el.Stop()
	assert.False(t, el.EmitSimple(EventTypeStart, 0, "", nil))
	assert.Equal(t, false, el.Stats()["running"])
}

// TestEngineEmitsRaceEvents wires an event log into a race.
func TestEngineEmitsRaceEvents(t *testing.T) {
	el := NewEventLog()
	require.NoError(t, el.Start(""))
	defer el.Stop()

	e, _ := newTestEngine(t, straightTrack(t), func(c *Config) { c.EventLog = el })
	v := e.Player()
	e.referee.RequestRespawn(v, RespawnManual, -1)
	e.combat.Knockdown(e.Player(), 1, "test")

	// start, respawn; the knockdown is ignored while respawning
	assert.Equal(t, uint64(2), el.TotalCount())
}
