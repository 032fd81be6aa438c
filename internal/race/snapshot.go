package race

import (
	"sync/atomic"
	"time"
)

// VehicleSnapshot is an immutable copy of vehicle state for readers
// outside the simulation goroutine.
type VehicleSnapshot struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	Kind           string  `json:"kind"`
	Rank           int     `json:"rank"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	Heading        float64 `json:"heading"`
	Speed          float64 `json:"speed"`
	Lap            int     `json:"lap"`
	Checkpoint     int     `json:"checkpoint"`
	NextCheckpoint int     `json:"nextCheckpoint"`
	Progress       float64 `json:"progress"`
	GlobalProgress float64 `json:"globalProgress"`
	Finished       bool    `json:"finished"`
	FinishTime     float64 `json:"finishTime,omitempty"`
	Item           string  `json:"item"`
	Down           string  `json:"down"`
	ShieldHits     int     `json:"shieldHits"`
	Boosting       bool    `json:"boosting"`
	Respawning     bool    `json:"respawning"`
	InMud          bool    `json:"inMud"`
	Respawns       int     `json:"respawns"`
	StealthUses    int     `json:"stealthUses"`
}

type ProjectileSnapshot struct {
	ID   uint64  `json:"id"`
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
}

type HazardSnapshot struct {
	ID   uint64  `json:"id"`
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

type CrateSnapshot struct {
	Item string  `json:"item"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// RaceSnapshot is a complete immutable race state. Vehicles are in
// ranking order.
type RaceSnapshot struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Tick      uint64    `json:"tick"`
	Track     string    `json:"track"`
	Laps      int       `json:"laps"`
	RaceTime  float64   `json:"raceTime"`
	Countdown float64   `json:"countdown"`
	Finished  bool      `json:"finished"`

	Vehicles    []VehicleSnapshot    `json:"vehicles"`
	Projectiles []ProjectileSnapshot `json:"projectiles"`
	Hazards     []HazardSnapshot     `json:"hazards"`
	Crates      []CrateSnapshot      `json:"crates"`
}

// SnapshotStore publishes snapshots from the simulation goroutine to any
// number of readers. Published snapshots are never mutated.
type SnapshotStore struct {
	latest   atomic.Pointer[RaceSnapshot]
	sequence atomic.Uint64
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Publish stamps and stores s.
func (p *SnapshotStore) Publish(s *RaceSnapshot) {
	s.Sequence = p.sequence.Add(1)
	s.Timestamp = time.Now()
	p.latest.Store(s)
}

// Latest returns the newest snapshot, or nil before the first publish.
func (p *SnapshotStore) Latest() *RaceSnapshot {
	return p.latest.Load()
}

func controllerKind(v *Vehicle) string {
	switch v.Controller.(type) {
	case HumanController:
		return "human"
	case RemoteController:
		return "remote"
	default:
		return "ai"
	}
}

func snapshotVehicle(v *Vehicle, rank int) VehicleSnapshot {
	return VehicleSnapshot{
		ID:             v.ID,
		Name:           v.Name,
		Color:          v.Color,
		Kind:           controllerKind(v),
		Rank:           rank,
		X:              v.Position.X(),
		Y:              v.Position.Y(),
		Z:              v.Position.Z(),
		Heading:        v.Heading,
		Speed:          v.PlanarSpeed(),
		Lap:            v.Lap,
		Checkpoint:     v.Checkpoint,
		NextCheckpoint: v.NextCheckpoint,
		Progress:       v.Progress,
		GlobalProgress: v.GlobalProgress,
		Finished:       v.Finished,
		FinishTime:     v.FinishTime,
		Item:           v.Item.String(),
		Down:           v.Down.String(),
		ShieldHits:     v.ShieldHits,
		Boosting:       v.Timers.Boost > 0,
		Respawning:     v.Respawning,
		InMud:          v.InMud,
		Respawns:       v.Respawns,
		StealthUses:    v.AI.StealthUses,
	}
}
