// =============================================================================
// KART RACE - HEADLESS SIMULATOR
// =============================================================================
// Runs a complete race with every slot driven by AI as fast as the CPU
// allows, then prints the final ranking table.
//
// USAGE:
//   go run ./cmd/simulate --ai 7 --laps 3 --seed 42
//   go run ./cmd/simulate --track tracks/canyon.json --level canyon --json
// =============================================================================
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"kart-race/internal/config"
	"kart-race/internal/minimap"
	"kart-race/internal/race"
)

type options struct {
	TrackFile    string
	TunablesFile string
	EventLog     string
	MinimapOut   string
	Level        string
	Laps         int
	AICount      int
	Seed         int64
	MaxTime      float64 // simulated seconds
	JSON         bool
}

// result is one row of the final table.
type result struct {
	Rank       int     `json:"rank"`
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Lap        int     `json:"lap"`
	Finished   bool    `json:"finished"`
	FinishTime float64 `json:"finishTime,omitempty"`
	Progress   float64 `json:"progress"`
	Respawns   int     `json:"respawns"`
}

type summary struct {
	Track    string   `json:"track"`
	Level    string   `json:"level"`
	Laps     int      `json:"laps"`
	Ticks    uint64   `json:"ticks"`
	RaceTime float64  `json:"raceTime"`
	Finished bool     `json:"finished"`
	WallMs   int64    `json:"wallMs"`
	Results  []result `json:"results"`
}

func main() {
	config.LoadDotEnv()
	appConfig := config.Load()
	config.SetupLogging(appConfig.LogLevel)

	opts := options{
		TrackFile:    appConfig.Paths.TrackFile,
		TunablesFile: appConfig.Paths.TunablesFile,
		EventLog:     appConfig.Paths.EventLog,
		Level:        appConfig.Race.Level,
		Laps:         appConfig.Race.Laps,
		AICount:      appConfig.Race.AICount,
		Seed:         appConfig.Race.Seed,
		MaxTime:      600,
	}

	pflag.StringVar(&opts.TrackFile, "track", opts.TrackFile, "track JSON file (default: demo circuit)")
	pflag.StringVar(&opts.TunablesFile, "tunables", opts.TunablesFile, "level tunables file")
	pflag.StringVar(&opts.EventLog, "events", opts.EventLog, "write race events as JSON lines")
	pflag.StringVar(&opts.MinimapOut, "minimap", "", "write the final minimap PNG")
	pflag.StringVar(&opts.Level, "level", opts.Level, "level id")
	pflag.IntVar(&opts.Laps, "laps", opts.Laps, "laps on closed circuits")
	pflag.IntVar(&opts.AICount, "ai", opts.AICount, "AI opponents besides the autopilot")
	pflag.Int64Var(&opts.Seed, "seed", opts.Seed, "RNG seed (0 = random)")
	pflag.Float64Var(&opts.MaxTime, "max-time", opts.MaxTime, "simulated seconds before giving up")
	pflag.BoolVar(&opts.JSON, "json", false, "print the result as JSON")
	pflag.Parse()

	if err := run(opts, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("❌ Simulation failed")
	}
}

func run(opts options, out io.Writer) error {
	t, err := config.LoadTrack(opts.TrackFile)
	if err != nil {
		return err
	}
	tunables, err := config.LoadTunables(opts.TunablesFile)
	if err != nil {
		return err
	}

	eventLog := race.NewEventLog()
	if opts.EventLog != "" {
		if err := eventLog.Start(opts.EventLog); err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer eventLog.Stop()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var mm *minimap.Recorder
	var sinks race.Sinks
	if opts.MinimapOut != "" {
		mm = minimap.NewRecorder(t, minimap.DefaultSize)
		sinks.Presentation = mm
	}

	autopilot := race.DefaultProfiles()[1]
	e, err := race.NewEngine(race.Config{
		Track:      t,
		Level:      opts.Level,
		Laps:       opts.Laps,
		Tunables:   tunables,
		PlayerName: "Autopilot",
		Autopilot:  &autopilot,
		AICount:    opts.AICount,
		Seed:       seed,
		Sinks:      sinks,
		EventLog:   eventLog,
	})
	if err != nil {
		return err
	}

	log.Info().Int64("seed", seed).Float64("maxTime", opts.MaxTime).Msg("🏎️ Simulating")

	start := time.Now()
	maxTicks := uint64(math.Round(opts.MaxTime / race.Dt))
	for !e.Finished() && e.Tick() < maxTicks {
		e.Step()
	}
	wall := time.Since(start)

	snap := e.Snapshot()
	s := summary{
		Track:    snap.Track,
		Level:    e.Level(),
		Laps:     snap.Laps,
		Ticks:    snap.Tick,
		RaceTime: snap.RaceTime,
		Finished: snap.Finished,
		WallMs:   wall.Milliseconds(),
	}
	for _, v := range snap.Vehicles {
		s.Results = append(s.Results, result{
			Rank:       v.Rank,
			ID:         v.ID,
			Name:       v.Name,
			Lap:        v.Lap,
			Finished:   v.Finished,
			FinishTime: v.FinishTime,
			Progress:   v.GlobalProgress,
			Respawns:   v.Respawns,
		})
	}

	if mm != nil {
		if err := writeMinimap(mm, snap, opts.MinimapOut); err != nil {
			return err
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	return printTable(out, s)
}

func writeMinimap(mm *minimap.Recorder, snap *race.RaceSnapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("minimap: %w", err)
	}
	defer f.Close()
	return mm.WritePNG(f, snap)
}

func printTable(out io.Writer, s summary) error {
	status := "time limit"
	if s.Finished {
		status = "finished"
	}
	fmt.Fprintf(out, "%s (%s) %d laps - %s after %.2fs simulated, %d ticks in %dms\n\n",
		s.Track, s.Level, s.Laps, status, s.RaceTime, s.Ticks, s.WallMs)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tNAME\tLAP\tTIME\tPROGRESS\tRESPAWNS")
	for _, r := range s.Results {
		finish := "-"
		if r.Finished {
			finish = fmt.Sprintf("%.2f", r.FinishTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%.0f\t%d\n", r.Rank, r.Name, r.Lap, finish, r.Progress, r.Respawns)
	}
	return tw.Flush()
}
