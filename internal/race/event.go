package race

import (
	"encoding/json"
	"time"
)

// EventType classifies race log events
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeStart
	EventTypeCheckpoint
	EventTypeLap
	EventTypeFinish
	EventTypeRespawn
	EventTypeKnockdown
	EventTypeItemPickup
	EventTypeItemUse
	EventTypeTeleport
	EventTypeStuckEscape
)

// EventVersion is bumped when payload shapes change
const EventVersion uint8 = 1

// Event is one entry of the race event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	Tick      uint64          `json:"tick"`
	VehicleID string          `json:"vehicleId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (t EventType) String() string {
	switch t {
	case EventTypeStart:
		return "start"
	case EventTypeCheckpoint:
		return "checkpoint"
	case EventTypeLap:
		return "lap"
	case EventTypeFinish:
		return "finish"
	case EventTypeRespawn:
		return "respawn"
	case EventTypeKnockdown:
		return "knockdown"
	case EventTypeItemPickup:
		return "item_pickup"
	case EventTypeItemUse:
		return "item_use"
	case EventTypeTeleport:
		return "teleport"
	case EventTypeStuckEscape:
		return "stuck_escape"
	default:
		return "unknown"
	}
}

// MarshalText writes the readable name into JSON logs
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Typed payloads

type CheckpointPayload struct {
	Checkpoint int     `json:"checkpoint"`
	Lap        int     `json:"lap"`
	RaceTime   float64 `json:"raceTime"`
}

type FinishPayload struct {
	Position int     `json:"position"`
	RaceTime float64 `json:"raceTime"`
}

type RespawnPayload struct {
	Reason     string  `json:"reason"`
	Checkpoint int     `json:"checkpoint"`
	X          float64 `json:"x"`
	Z          float64 `json:"z"`
}

type KnockdownPayload struct {
	AttackerID string  `json:"attackerId,omitempty"`
	Source     string  `json:"source"`
	Duration   float64 `json:"duration"`
}

type ItemPayload struct {
	Item string `json:"item"`
}

type TeleportPayload struct {
	FromS float64 `json:"fromS"`
	ToS   float64 `json:"toS"`
	Uses  int     `json:"uses"`
}

type StuckPayload struct {
	Phase int `json:"phase"`
}

// EncodePayload marshals a payload, returning nil on failure
func EncodePayload(payload interface{}) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent stamps an event with the wall clock
func NewEvent(eventType EventType, tick uint64, vehicleID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Tick:      tick,
		VehicleID: vehicleID,
		Payload:   EncodePayload(payload),
	}
}
