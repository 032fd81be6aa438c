package race

import (
	"fmt"
	"strings"
)

// Input is the local player's control state. Held keys persist between
// ticks; one-shot triggers are consumed by the tick that sees them.
type Input struct {
	Forward bool `json:"forward"`
	Brake   bool `json:"brake"`
	Left    bool `json:"left"`
	Right   bool `json:"right"`

	Punch   bool `json:"punch"`
	UseItem bool `json:"useItem"`
	Respawn bool `json:"respawn"`

	// Debug triggers, honored only when the engine runs with Debug set.
	DebugGiveItem     ItemType `json:"debugGiveItem"`
	DebugKnockdown    bool     `json:"debugKnockdown"`
	DebugForceRespawn bool     `json:"debugForceRespawn"`
}

// merge folds a newer input into the pending one: held keys follow the
// newest sample, one-shots accumulate until consumed.
func (in Input) merge(next Input) Input {
	out := next
	out.Punch = in.Punch || next.Punch
	out.UseItem = in.UseItem || next.UseItem
	out.Respawn = in.Respawn || next.Respawn
	out.DebugKnockdown = in.DebugKnockdown || next.DebugKnockdown
	out.DebugForceRespawn = in.DebugForceRespawn || next.DebugForceRespawn
	if next.DebugGiveItem == ItemNone {
		out.DebugGiveItem = in.DebugGiveItem
	}
	return out
}

// consumeOneShots clears triggers after a tick.
func (in *Input) consumeOneShots() {
	in.Punch = false
	in.UseItem = false
	in.Respawn = false
	in.DebugGiveItem = ItemNone
	in.DebugKnockdown = false
	in.DebugForceRespawn = false
}

// ActionType is a discrete action applied to a vehicle by id, used by
// remote peers and the HTTP/WebSocket surfaces.
type ActionType uint8

const (
	ActionNone ActionType = iota
	ActionPunch
	ActionUseItem
	ActionRespawn
)

func (a ActionType) String() string {
	switch a {
	case ActionPunch:
		return "punch"
	case ActionUseItem:
		return "use_item"
	case ActionRespawn:
		return "respawn"
	default:
		return "none"
	}
}

// ParseAction maps a wire name to an ActionType.
func ParseAction(s string) (ActionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "punch":
		return ActionPunch, nil
	case "use_item", "item":
		return ActionUseItem, nil
	case "respawn":
		return ActionRespawn, nil
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

// CommandKind tags a Command.
type CommandKind uint8

const (
	CommandInput CommandKind = iota
	CommandAction
	CommandRemoteSnapshot
)

// Command is produced by other goroutines and drained by the simulation
// at the start of each tick.
type Command struct {
	Kind      CommandKind
	VehicleID string
	Input     Input
	Action    ActionType
	Snapshot  RemoteSnapshot
}
