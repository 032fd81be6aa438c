package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kart-race/internal/minimap"
	"kart-race/internal/race"
	"kart-race/internal/track"
)

// ============================================================================
// Mock Implementations
// ============================================================================

// mockEngine implements EngineInterface for testing
type mockEngine struct {
	mu       sync.Mutex
	snap     *race.RaceSnapshot
	commands []race.Command
	full     bool
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		snap: &race.RaceSnapshot{
			Sequence: 3,
			Tick:     240,
			Track:    "demo",
			Laps:     3,
			RaceTime: 2,
			Vehicles: []race.VehicleSnapshot{
				{ID: "player", Name: "Player", Kind: "human", Rank: 1, Lap: 1, GlobalProgress: 900},
				{ID: "ai-1", Name: "Rookie 1", Kind: "ai", Rank: 2, Lap: 0, GlobalProgress: 400},
			},
		},
	}
}

func (m *mockEngine) Snapshot() *race.RaceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *mockEngine) Submit(cmd race.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return race.ErrQueueFull
	}
	m.commands = append(m.commands, cmd)
	return nil
}

func (m *mockEngine) Tunables() race.Tunables { return race.DefaultTunables() }
func (m *mockEngine) Level() string           { return race.DefaultLevel }

func (m *mockEngine) submitted() []race.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]race.Command(nil), m.commands...)
}

func testRouter(t *testing.T, eng EngineInterface, mm MinimapRenderer) http.Handler {
	t.Helper()
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	return NewRouter(RouterConfig{Engine: eng, Minimap: mm, RateLimiter: rl, DisableLogging: true})
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// HTTP Handler Tests
// ============================================================================

func TestGetState(t *testing.T) {
	eng := newMockEngine()
	rec := do(testRouter(t, eng, nil), http.MethodGet, "/api/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var snap race.RaceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(240), snap.Tick)
	assert.Len(t, snap.Vehicles, 2)
}

func TestGetStateBeforePublish(t *testing.T) {
	eng := newMockEngine()
	eng.snap = nil
	rec := do(testRouter(t, eng, nil), http.MethodGet, "/api/state", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestGetRankings(t *testing.T) {
	rec := do(testRouter(t, newMockEngine(), nil), http.MethodGet, "/api/rankings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rankings []rankingEntry `json:"rankings"`
		Laps     int            `json:"laps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rankings, 2)
	assert.Equal(t, "player", body.Rankings[0].ID)
	assert.Equal(t, 2, body.Rankings[1].Rank)
	assert.Equal(t, 3, body.Laps)
}

func TestGetTunables(t *testing.T) {
	rec := do(testRouter(t, newMockEngine(), nil), http.MethodGet, "/api/tunables", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "default", body["level"])
	tun := body["tunables"].(map[string]interface{})
	assert.Equal(t, race.DefaultTunables().MissWarnDistance, tun["missWarnDistance"])
}

func TestPostAction(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		action race.ActionType
	}{
		{"punch", `{"vehicleId":"remote-a","action":"punch"}`, http.StatusAccepted, race.ActionPunch},
		{"item alias", `{"vehicleId":"remote-a","action":"item"}`, http.StatusAccepted, race.ActionUseItem},
		{"unknown action", `{"vehicleId":"remote-a","action":"fly"}`, http.StatusBadRequest, race.ActionNone},
		{"missing vehicle", `{"action":"punch"}`, http.StatusBadRequest, race.ActionNone},
		{"unknown field", `{"vehicleId":"x","action":"punch","admin":true}`, http.StatusBadRequest, race.ActionNone},
		{"malformed", `{`, http.StatusBadRequest, race.ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newMockEngine()
			rec := do(testRouter(t, eng, nil), http.MethodPost, "/api/action", tt.body)
			assert.Equal(t, tt.status, rec.Code)

			cmds := eng.submitted()
			if tt.status != http.StatusAccepted {
				assert.Empty(t, cmds)
				return
			}
			require.Len(t, cmds, 1)
			assert.Equal(t, race.CommandAction, cmds[0].Kind)
			assert.Equal(t, "remote-a", cmds[0].VehicleID)
			assert.Equal(t, tt.action, cmds[0].Action)
		})
	}
}

func TestPostInput(t *testing.T) {
	eng := newMockEngine()
	rec := do(testRouter(t, eng, nil), http.MethodPost, "/api/input", `{"forward":true,"left":true,"item":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	cmds := eng.submitted()
	require.Len(t, cmds, 1)
	assert.Equal(t, race.CommandInput, cmds[0].Kind)
	assert.Equal(t, race.Input{Forward: true, Left: true, UseItem: true}, cmds[0].Input)
}

func TestPostWhenQueueFull(t *testing.T) {
	eng := newMockEngine()
	eng.full = true
	rec := do(testRouter(t, eng, nil), http.MethodPost, "/api/input", `{"forward":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMinimap(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := do(testRouter(t, newMockEngine(), nil), http.MethodGet, "/api/minimap.png", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("renders", func(t *testing.T) {
		mm := minimap.NewRecorder(track.DemoCircuit(), 128)
		mm.UpdateVehicle(race.Pose{ID: "player", Visible: true})

		rec := do(testRouter(t, newMockEngine(), mm), http.MethodGet, "/api/minimap.png", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, 128, img.Bounds().Dx())
	})
}

// TestRouterWithRealEngine drives a real race through the HTTP surface.
func TestRouterWithRealEngine(t *testing.T) {
	e, err := race.NewEngine(race.Config{Track: track.DemoCircuit(), AICount: 2, Seed: 3})
	require.NoError(t, err)
	h := testRouter(t, e, nil)

	rec := do(h, http.MethodPost, "/api/input", `{"forward":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	for i := 0; i < 60; i++ {
		e.Step()
	}

	rec = do(h, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap race.RaceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(60), snap.Tick)
	assert.Len(t, snap.Vehicles, 3)
}

// ============================================================================
// Rate Limiting Tests
// ============================================================================

func TestRateLimiterRejectsBurst(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()
	h := NewRouter(RouterConfig{Engine: newMockEngine(), RateLimiter: rl, DisableLogging: true})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		codes = append(codes, do(h, http.MethodGet, "/api/state", "").Code)
	}
	assert.Equal(t, []int{200, 200, 429, 429}, codes)
	assert.Equal(t, uint64(2), rl.GetStats()["rejected"])
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.cleanup(time.Now().Add(time.Hour))
	_, ok := rl.limiters.Load("10.0.0.1")
	assert.False(t, ok)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}, "9.9.9.9:1", "1.2.3.4"},
		{"real ip", map[string]string{"X-Real-IP": " 5.6.7.8 "}, "9.9.9.9:1", "5.6.7.8"},
		{"remote addr", nil, "9.9.9.9:1234", "9.9.9.9"},
		{"bare remote", nil, "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestConnLimiter(t *testing.T) {
	cl := NewConnLimiter(2)
	assert.True(t, cl.Acquire("a"))
	assert.True(t, cl.Acquire("a"))
	assert.False(t, cl.Acquire("a"))
	assert.True(t, cl.Acquire("b"))

	cl.Release("a")
	assert.Equal(t, 1, cl.Count("a"))
	assert.True(t, cl.Acquire("a"))
}

func TestIsLoopbackAddr(t *testing.T) {
	assert.True(t, isLoopbackAddr("127.0.0.1:6060"))
	assert.True(t, isLoopbackAddr("localhost:9000"))
	assert.True(t, isLoopbackAddr("[::1]:6060"))
	assert.False(t, isLoopbackAddr("0.0.0.0:6060"))
	assert.False(t, isLoopbackAddr(":6060"))
}

func TestDebugHandlerHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	DebugHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	RecordRespawn(race.RespawnStuck)
	rec = httptest.NewRecorder()
	DebugHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `race_respawns_total{reason="stuck"}`)
}

// ============================================================================
// WebSocket Tests
// ============================================================================

func TestHandleMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		kind race.CommandKind
		err  bool
	}{
		{"snapshot", `{"type":"snapshot","vehicleId":"remote-a","snapshot":{"seq":4,"position":[1,0,2],"velocity":[0,0,5],"heading":0.5}}`, race.CommandRemoteSnapshot, false},
		{"action", `{"type":"action","vehicleId":"remote-a","action":"respawn"}`, race.CommandAction, false},
		{"input", `{"type":"input","input":{"forward":true}}`, race.CommandInput, false},
		{"snapshot without vehicle", `{"type":"snapshot","snapshot":{"seq":1}}`, 0, true},
		{"action without vehicle", `{"type":"action","action":"punch"}`, 0, true},
		{"unknown type", `{"type":"chat"}`, 0, true},
		{"not json", `hello`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newMockEngine()
			hub := NewWebSocketHub(eng, HubConfig{})
			err := hub.handleMessage([]byte(tt.msg))
			if tt.err {
				assert.True(t, errors.Is(err, errBadMessage))
				assert.Empty(t, eng.submitted())
				return
			}
			require.NoError(t, err)
			cmds := eng.submitted()
			require.Len(t, cmds, 1)
			assert.Equal(t, tt.kind, cmds[0].Kind)
		})
	}
}

func TestHandleMessageSnapshotFields(t *testing.T) {
	eng := newMockEngine()
	hub := NewWebSocketHub(eng, HubConfig{})
	require.NoError(t, hub.handleMessage([]byte(`{"type":"snapshot","vehicleId":"remote-a","snapshot":{"seq":9,"position":[1,2,3],"velocity":[4,5,6],"heading":1.25,"steer":-0.5}}`)))

	s := eng.submitted()[0].Snapshot
	assert.Equal(t, uint64(9), s.Seq)
	assert.Equal(t, race.Vec3{1, 2, 3}, s.Position)
	assert.Equal(t, race.Vec3{4, 5, 6}, s.Velocity)
	assert.Equal(t, 1.25, s.Heading)
	assert.Equal(t, -0.5, s.Steer)
}

func TestAllowedOrigin(t *testing.T) {
	hub := NewWebSocketHub(newMockEngine(), HubConfig{AllowedOrigins: []string{"https://race.example"}})
	assert.True(t, hub.allowedOrigin(""))
	assert.True(t, hub.allowedOrigin("http://localhost:5173"))
	assert.True(t, hub.allowedOrigin("https://race.example"))
	assert.False(t, hub.allowedOrigin("https://evil.example"))

	open := NewWebSocketHub(newMockEngine(), HubConfig{AllowedOrigins: []string{"*"}})
	assert.True(t, open.allowedOrigin("https://anything.example"))
}

// TestWebSocketRelay connects a peer, sends an action and receives a
// race:state broadcast.
func TestWebSocketRelay(t *testing.T) {
	eng := newMockEngine()
	srv := NewServer(ServerConfig{
		Engine:    eng,
		Hub:       HubConfig{BroadcastInterval: 10 * time.Millisecond},
		RateLimit: &RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Hour},
	})
	go srv.Hub().Run()
	srv.Hub().StartBroadcastLoop()
	defer srv.Shutdown(context.Background())

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"action","vehicleId":"remote-a","action":"punch"}`)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Event string            `json:"event"`
		Data  race.RaceSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "race:state", msg.Event)
	assert.Equal(t, uint64(240), msg.Data.Tick)

	assert.Eventually(t, func() bool { return len(eng.submitted()) == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketPerIPLimit(t *testing.T) {
	hub := NewWebSocketHub(newMockEngine(), HubConfig{MaxPerIP: 1})
	hub.connLimiter.Acquire("192.0.2.1")

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
