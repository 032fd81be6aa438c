// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for simulation, race and server settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"strings"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig controls the fixed-step driver.
type SimConfig struct {
	TickRate         int // Fixed simulation steps per second
	FrameRate        int // Real-time driver frames per second
	MaxStepsPerFrame int // Catch-up cap per frame; surplus time is dropped
	BroadcastRate    int // WebSocket state broadcasts per second
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		TickRate:         120,
		FrameRate:        60,
		MaxStepsPerFrame: 8,
		BroadcastRate:    10,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if fps := getEnvInt("FRAME_RATE", 0); fps > 0 {
		cfg.FrameRate = fps
	}
	if n := getEnvInt("MAX_STEPS_PER_FRAME", 0); n > 0 {
		cfg.MaxStepsPerFrame = n
	}
	if r := getEnvInt("BROADCAST_RATE", 0); r > 0 {
		cfg.BroadcastRate = r
	}

	return cfg
}

// =============================================================================
// RACE CONFIGURATION
// =============================================================================

// RaceConfig describes the race to set up.
type RaceConfig struct {
	Level       string   // Tunables table id
	Laps        int      // Laps on closed circuits
	AICount     int      // AI opponents
	Seed        int64    // RNG seed; 0 picks one from the clock
	Countdown   float64  // Seconds of grid lock before the start
	PlayerName  string   // Display name of the human vehicle
	RemotePeers []string // Peer ids that drive remote vehicles
	Autopilot   bool     // Let the AI drive the player slot
	Debug       bool     // Honor debug input triggers
}

// DefaultRace returns the default race configuration.
func DefaultRace() RaceConfig {
	return RaceConfig{
		Level:      "default",
		Laps:       3,
		AICount:    5,
		Countdown:  3,
		PlayerName: "Player",
	}
}

// RaceFromEnv returns race configuration with environment variable overrides.
func RaceFromEnv() RaceConfig {
	cfg := DefaultRace()

	if l := os.Getenv("RACE_LEVEL"); l != "" {
		cfg.Level = strings.ToLower(l)
	}
	if n := getEnvInt("RACE_LAPS", 0); n > 0 {
		cfg.Laps = n
	}
	if n := getEnvInt("RACE_AI_COUNT", -1); n >= 0 {
		cfg.AICount = n
	}
	if s := getEnvInt("RACE_SEED", 0); s != 0 {
		cfg.Seed = int64(s)
	}
	if c := getEnvFloat("RACE_COUNTDOWN", -1); c >= 0 {
		cfg.Countdown = c
	}
	if name := os.Getenv("PLAYER_NAME"); name != "" {
		cfg.PlayerName = name
	}
	if peers := os.Getenv("RACE_REMOTE_PEERS"); peers != "" {
		cfg.RemotePeers = splitList(peers)
	}
	cfg.Autopilot = getEnvBool("RACE_AUTOPILOT", cfg.Autopilot)
	cfg.Debug = getEnvBool("RACE_DEBUG", cfg.Debug)

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	DebugAddr      string // pprof and metrics, localhost only
	AllowedOrigins []string
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:      3000,
		DebugAddr: "localhost:6060",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"http://127.0.0.1:3000",
		},
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if addr := os.Getenv("DEBUG_ADDR"); addr != "" {
		cfg.DebugAddr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	return cfg
}

// =============================================================================
// RESOURCE LIMITS
// =============================================================================

// ResourceLimits controls DoS protection and performance limits.
type ResourceLimits struct {
	MaxProjectiles    int // Live projectiles; the oldest is dropped when full
	MaxHazards        int // Live ground hazards
	MaxRemoteVehicles int // Remote peers accepted into a race
	CommandQueue      int // Inbound command queue capacity
	MaxWSClients      int // Concurrent WebSocket connections
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() ResourceLimits {
	return ResourceLimits{
		MaxProjectiles:    24,
		MaxHazards:        32,
		MaxRemoteVehicles: 7,
		CommandQueue:      1024,
		MaxWSClients:      64,
	}
}

// LimitsFromEnv returns limits with environment variable overrides.
func LimitsFromEnv() ResourceLimits {
	cfg := DefaultLimits()

	if n := getEnvInt("MAX_PROJECTILES", 0); n > 0 {
		cfg.MaxProjectiles = n
	}
	if n := getEnvInt("MAX_HAZARDS", 0); n > 0 {
		cfg.MaxHazards = n
	}
	if n := getEnvInt("MAX_REMOTE_VEHICLES", -1); n >= 0 {
		cfg.MaxRemoteVehicles = n
	}
	if n := getEnvInt("COMMAND_QUEUE", 0); n > 0 {
		cfg.CommandQueue = n
	}
	if n := getEnvInt("MAX_WS_CLIENTS", 0); n > 0 {
		cfg.MaxWSClients = n
	}

	return cfg
}

// =============================================================================
// PATHS
// =============================================================================

// PathsConfig points at optional data files. Empty means built-in.
type PathsConfig struct {
	TrackFile    string // Track JSON; empty uses the demo circuit
	TunablesFile string // Level tunables (yaml/json/toml); empty uses built-ins
	EventLog     string // JSONL race event log; empty disables it
}

// PathsFromEnv reads file locations from the environment.
func PathsFromEnv() PathsConfig {
	return PathsConfig{
		TrackFile:    os.Getenv("TRACK_FILE"),
		TunablesFile: os.Getenv("TUNABLES_FILE"),
		EventLog:     os.Getenv("EVENT_LOG"),
	}
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim      SimConfig
	Race     RaceConfig
	Server   ServerConfig
	Limits   ResourceLimits
	Paths    PathsConfig
	LogLevel string
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return AppConfig{
		Sim:      SimFromEnv(),
		Race:     RaceFromEnv(),
		Server:   ServerFromEnv(),
		Limits:   LimitsFromEnv(),
		Paths:    PathsFromEnv(),
		LogLevel: level,
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
