package race

// Tunables are per-level gameplay thresholds. Field tags match the keys of
// a tunables override file (levels.<id>.<key>).
type Tunables struct {
	// Checkpoints and respawn
	MissWarnDistance       float64 `mapstructure:"miss_warn_distance" json:"missWarnDistance"`
	MissRespawnDistance    float64 `mapstructure:"miss_respawn_distance" json:"missRespawnDistance"`
	MissResetDistance      float64 `mapstructure:"miss_reset_distance" json:"missResetDistance"`
	OffTrackRespawnFactor  float64 `mapstructure:"off_track_respawn_factor" json:"offTrackRespawnFactor"`
	RespawnDelay           float64 `mapstructure:"respawn_delay" json:"respawnDelay"`
	CheckpointMaxStep      float64 `mapstructure:"checkpoint_max_step" json:"checkpointMaxStep"`
	CheckpointLateralScale float64 `mapstructure:"checkpoint_lateral_scale" json:"checkpointLateralScale"`

	// AI pace
	AIBaseSpeed       float64 `mapstructure:"ai_base_speed" json:"aiBaseSpeed"`
	AIMinSpeed        float64 `mapstructure:"ai_min_speed" json:"aiMinSpeed"`
	AIMaxSpeed        float64 `mapstructure:"ai_max_speed" json:"aiMaxSpeed"`
	CatchUpGain       float64 `mapstructure:"catch_up_gain" json:"catchUpGain"`
	CatchUpMax        float64 `mapstructure:"catch_up_max" json:"catchUpMax"`
	FallBackGain      float64 `mapstructure:"fall_back_gain" json:"fallBackGain"`
	FallBackMax       float64 `mapstructure:"fall_back_max" json:"fallBackMax"`
	CurvaturePenalty  float64 `mapstructure:"curvature_penalty" json:"curvaturePenalty"`
	CombatGracePeriod float64 `mapstructure:"combat_grace_period" json:"combatGracePeriod"`

	// Stuck detection
	StuckGrace        float64 `mapstructure:"stuck_grace" json:"stuckGrace"`
	StuckThreshold    float64 `mapstructure:"stuck_threshold" json:"stuckThreshold"`
	StuckEscapeWindow float64 `mapstructure:"stuck_escape_window" json:"stuckEscapeWindow"`
	EscapePhaseTime   float64 `mapstructure:"escape_phase_time" json:"escapePhaseTime"`

	// Stealth teleport
	StealthWarmup   float64 `mapstructure:"stealth_warmup" json:"stealthWarmup"`
	StealthInterval float64 `mapstructure:"stealth_interval" json:"stealthInterval"`
	StealthGap      float64 `mapstructure:"stealth_gap" json:"stealthGap"`
	StealthBehind   float64 `mapstructure:"stealth_behind" json:"stealthBehind"`
	StealthCooldown float64 `mapstructure:"stealth_cooldown" json:"stealthCooldown"`
	StealthOffset   float64 `mapstructure:"stealth_offset" json:"stealthOffset"`
	StealthMaxUses  int     `mapstructure:"stealth_max_uses" json:"stealthMaxUses"` // 0 = unlimited

	// Items
	ItemWaveAdvanceDelay float64 `mapstructure:"item_wave_advance_delay" json:"itemWaveAdvanceDelay"`
}

// DefaultTunables is the "default" level entry.
func DefaultTunables() Tunables {
	return Tunables{
		MissWarnDistance:       45,
		MissRespawnDistance:    90,
		MissResetDistance:      12,
		OffTrackRespawnFactor:  3.2,
		RespawnDelay:           1.2,
		CheckpointMaxStep:      12,
		CheckpointLateralScale: 1.6,

		AIBaseSpeed:       26,
		AIMinSpeed:        8,
		AIMaxSpeed:        40,
		CatchUpGain:       0.05,
		CatchUpMax:        7,
		FallBackGain:      0.03,
		FallBackMax:       5,
		CurvaturePenalty:  14,
		CombatGracePeriod: 3,

		StuckGrace:        4,
		StuckThreshold:    1.5,
		StuckEscapeWindow: 4.5,
		EscapePhaseTime:   1.2,

		StealthWarmup:   20,
		StealthInterval: 3,
		StealthGap:      120,
		StealthBehind:   6,
		StealthCooldown: 15,
		StealthOffset:   35,
		StealthMaxUses:  0,

		ItemWaveAdvanceDelay: 6,
	}
}

// TunableTable maps level ids to tunables. Unknown ids fall back to
// DefaultLevel.
type TunableTable map[string]Tunables

const DefaultLevel = "default"

// BuiltinTunables returns the shipped table.
func BuiltinTunables() TunableTable {
	canyon := DefaultTunables()
	canyon.OffTrackRespawnFactor = 2.4
	canyon.MissWarnDistance = 35
	canyon.MissRespawnDistance = 70
	canyon.AIBaseSpeed = 24

	sprint := DefaultTunables()
	sprint.StealthGap = 90
	sprint.StealthWarmup = 12
	sprint.ItemWaveAdvanceDelay = 4

	return TunableTable{
		DefaultLevel: DefaultTunables(),
		"canyon":     canyon,
		"sprint":     sprint,
	}
}

// Lookup returns the level entry or the default.
func (t TunableTable) Lookup(level string) Tunables {
	if tun, ok := t[level]; ok {
		return tun
	}
	if tun, ok := t[DefaultLevel]; ok {
		return tun
	}
	return DefaultTunables()
}
