package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"kart-race/internal/race"
)

// maxBodyBytes bounds request bodies; control messages are tiny.
const maxBodyBytes = 4 << 10

// Handler methods for routerHandlers

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "Race not started", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

// rankingEntry is one row of the ranking table.
type rankingEntry struct {
	Rank           int     `json:"rank"`
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Kind           string  `json:"kind"`
	Lap            int     `json:"lap"`
	GlobalProgress float64 `json:"globalProgress"`
	Finished       bool    `json:"finished"`
	FinishTime     float64 `json:"finishTime,omitempty"`
}

func (h *routerHandlers) handleGetRankings(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Snapshot()
	if snap == nil {
		writeError(w, "Race not started", http.StatusServiceUnavailable)
		return
	}

	rows := make([]rankingEntry, 0, len(snap.Vehicles))
	for _, v := range snap.Vehicles {
		rows = append(rows, rankingEntry{
			Rank:           v.Rank,
			ID:             v.ID,
			Name:           v.Name,
			Kind:           v.Kind,
			Lap:            v.Lap,
			GlobalProgress: v.GlobalProgress,
			Finished:       v.Finished,
			FinishTime:     v.FinishTime,
		})
	}

	writeJSON(w, map[string]interface{}{
		"raceTime": snap.RaceTime,
		"laps":     snap.Laps,
		"finished": snap.Finished,
		"rankings": rows,
	})
}

func (h *routerHandlers) handleGetTunables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"level":    h.engine.Level(),
		"tunables": h.engine.Tunables(),
	})
}

func (h *routerHandlers) handleGetMinimap(w http.ResponseWriter, r *http.Request) {
	if h.minimap == nil {
		writeError(w, "Minimap disabled", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := h.minimap.WritePNG(&buf, h.engine.Snapshot()); err != nil {
		log.Error().Err(err).Msg("❌ Minimap render failed")
		writeError(w, "Render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (h *routerHandlers) handleAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VehicleID string `json:"vehicleId"`
		Action    string `json:"action"`
	}

	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.VehicleID == "" {
		writeError(w, "vehicleId is required", http.StatusBadRequest)
		return
	}

	action, err := race.ParseAction(req.Action)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.submit(w, race.Command{Kind: race.CommandAction, VehicleID: req.VehicleID, Action: action})
}

func (h *routerHandlers) handleInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Forward bool `json:"forward"`
		Brake   bool `json:"brake"`
		Left    bool `json:"left"`
		Right   bool `json:"right"`
		Punch   bool `json:"punch"`
		Item    bool `json:"item"`
		Respawn bool `json:"respawn"`
	}

	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	h.submit(w, race.Command{
		Kind: race.CommandInput,
		Input: race.Input{
			Forward: req.Forward,
			Brake:   req.Brake,
			Left:    req.Left,
			Right:   req.Right,
			Punch:   req.Punch,
			UseItem: req.Item,
			Respawn: req.Respawn,
		},
	})
}

func (h *routerHandlers) submit(w http.ResponseWriter, cmd race.Command) {
	if err := h.engine.Submit(cmd); err != nil {
		if errors.Is(err, race.ErrQueueFull) {
			RecordConnectionRejected("queue_full")
			writeError(w, "Busy, retry", http.StatusServiceUnavailable)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]bool{"queued": true})
}

// Helper functions (package-level for reuse)

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
