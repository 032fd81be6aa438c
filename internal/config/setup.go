package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kart-race/internal/track"
)

// LoadDotEnv loads ../.env, falling back to .env. A missing file is fine.
func LoadDotEnv() {
	if err := godotenv.Load("../.env"); err == nil {
		log.Info().Msg("✅ Loaded environment from ../.env")
		return
	}
	if err := godotenv.Load(".env"); err == nil {
		log.Info().Msg("✅ Loaded environment from .env")
		return
	}
	log.Info().Msg("💡 No .env file found, using environment variables only")
}

// ParseLogLevel maps trace|debug|info|warn|error to a zerolog level.
// Anything else is info.
func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetupLogging points the global logger at a console writer on stderr.
func SetupLogging(level string) {
	zerolog.SetGlobalLevel(ParseLogLevel(level))
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()
}

// LoadTrack reads a track file, or returns the demo circuit when path is
// empty. Clamped values are logged.
func LoadTrack(path string) (*track.Track, error) {
	if path == "" {
		return track.DemoCircuit(), nil
	}
	t, err := track.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load track %s: %w", path, err)
	}
	return t, nil
}
