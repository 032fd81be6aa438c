package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"kart-race/internal/api"
	"kart-race/internal/config"
	"kart-race/internal/minimap"
	"kart-race/internal/race"
)

func main() {
	config.LoadDotEnv()

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	config.SetupLogging(appConfig.LogLevel)

	log.Info().Msg("🏁 ================================")
	log.Info().Msg("🏁  KART RACE - SIMULATION SERVER")
	log.Info().Msg("🏁 ================================")

	raceCfg := appConfig.Race
	limits := appConfig.Limits

	t, err := config.LoadTrack(appConfig.Paths.TrackFile)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Track load failed")
	}
	tunables, err := config.LoadTunables(appConfig.Paths.TunablesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Tunables load failed")
	}

	eventLog := race.NewEventLog()
	if appConfig.Paths.EventLog != "" {
		if err := eventLog.Start(appConfig.Paths.EventLog); err != nil {
			log.Warn().Err(err).Msg("⚠️ Event log disabled")
		} else {
			log.Info().Str("path", appConfig.Paths.EventLog).Msg("📝 Event log")
		}
	}

	peers := raceCfg.RemotePeers
	if len(peers) > limits.MaxRemoteVehicles {
		log.Warn().Int("requested", len(peers)).Int("max", limits.MaxRemoteVehicles).Msg("⚠️ Too many remote peers, extra peers dropped")
		peers = peers[:limits.MaxRemoteVehicles]
	}

	seed := raceCfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var autopilot *race.Profile
	if raceCfg.Autopilot {
		p := race.DefaultProfiles()[1]
		autopilot = &p
	}

	mm := minimap.NewRecorder(t, minimap.DefaultSize)

	engine, err := race.NewEngine(race.Config{
		Track:            t,
		Level:            raceCfg.Level,
		Laps:             raceCfg.Laps,
		Tunables:         tunables,
		PlayerName:       raceCfg.PlayerName,
		Autopilot:        autopilot,
		AICount:          raceCfg.AICount,
		RemotePeers:      peers,
		Seed:             seed,
		CountdownSeconds: raceCfg.Countdown,
		MaxStepsPerFrame: appConfig.Sim.MaxStepsPerFrame,
		Debug:            raceCfg.Debug,
		Limits: race.Limits{
			MaxProjectiles: limits.MaxProjectiles,
			MaxHazards:     limits.MaxHazards,
			CommandQueue:   limits.CommandQueue,
		},
		Sinks:    race.Sinks{Presentation: mm},
		EventLog: eventLog,
		OnRespawn: func(v *race.Vehicle, reason race.RespawnReason) {
			api.RecordRespawn(reason)
		},
		OnCheckpoint: func(v *race.Vehicle, checkpoint int) {
			api.RecordCheckpoint()
		},
		OnFinish: func(v *race.Vehicle, position int) {
			log.Info().Str("vehicle", v.ID).Int("position", position).Float64("time", v.FinishTime).Msg("🏆 Vehicle finished")
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Race setup failed")
	}

	runner := race.NewRunner(engine, appConfig.Sim.FrameRate)
	runner.OnFrame = func(s race.FrameStats) {
		api.RecordSteps(s.Steps)
		if s.Steps > 0 {
			api.RecordTick(s.Elapsed / time.Duration(s.Steps))
			api.UpdateRaceGauges(engine.Snapshot())
		}
		api.UpdateEventLogStats(eventLog.TotalCount(), eventLog.DroppedCount())
	}

	// Debug server (pprof + metrics), localhost only
	var debugServer *http.Server
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		debugCfg := api.DefaultObservabilityConfig()
		debugCfg.ListenAddr = appConfig.Server.DebugAddr
		debugServer = api.StartDebugServer(debugCfg)
	}

	server := api.NewServer(api.ServerConfig{
		Addr:        ":" + strconv.Itoa(appConfig.Server.Port),
		Engine:      engine,
		Minimap:     mm,
		CORSOrigins: appConfig.Server.AllowedOrigins,
		Hub: api.HubConfig{
			MaxConnections:    limits.MaxWSClients,
			BroadcastInterval: time.Second / time.Duration(max(1, appConfig.Sim.BroadcastRate)),
		},
	})

	runner.Start()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Failed to start server")
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Int("port", appConfig.Server.Port).Msg("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Info().Msg("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️ API shutdown")
	}
	if debugServer != nil {
		debugServer.Shutdown(ctx)
	}
	runner.Stop()
	eventLog.Stop()
	log.Info().Msg("👋 Goodbye!")
}
