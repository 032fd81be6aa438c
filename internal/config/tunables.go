package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"kart-race/internal/race"
)

// LoadTunables reads level threshold overrides from a yaml, json or toml
// file laid out as levels.<id>.<field>. Every level starts from the
// built-in entry for that id (or the default entry) and only the keys
// present in the file override it. An empty path or a missing file yields
// the built-in table.
func LoadTunables(path string) (race.TunableTable, error) {
	table := race.BuiltinTunables()
	if path == "" {
		return table, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("⚠️ Tunables file not found, using built-in levels")
		return table, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading tunables file: %w", err)
	}

	levels := v.GetStringMap("levels")
	for id := range levels {
		sub := v.Sub("levels." + id)
		if sub == nil {
			continue
		}
		id = strings.ToLower(id)
		tun := table.Lookup(id)
		if err := sub.UnmarshalExact(&tun); err != nil {
			return nil, fmt.Errorf("level %q: %w", id, err)
		}
		table[id] = tun
		log.Debug().Str("level", id).Int("keys", len(sub.AllKeys())).Msg("🎚️ Level tunables loaded")
	}

	log.Info().Str("path", path).Int("levels", len(table)).Msg("🎚️ Tunables loaded")
	return table, nil
}
