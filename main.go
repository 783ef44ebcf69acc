package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/b1506704/Live2D-AI-Agent/app/configs"
	"github.com/b1506704/Live2D-AI-Agent/app/logs"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML config (default $AGENT_CONFIG or ./config.yaml)")
	flag.Parse()

	cfg, err := configs.LoadConfig(*configPath)
	if errors.Is(err, configs.ErrNoConfig) {
		log.Warn().Err(err).Msg("⚠️ No config file, using defaults")
		cfg = configs.Default()
		cfg.ApplyEnv()
	} else if err != nil {
		log.Fatal().Err(err).Msg("❌ Error loading config")
	}

	l, err := logs.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Error setting up logs")
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cfg.Build(ctx, l.Audit)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Error building agent")
	}
	defer app.Close()

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := app.Server.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("❌ HTTP server stopped")
			stop()
		}
	})
	wg.Go(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("⚠️ Error during shutdown")
		}
	})
	wg.Wait()

	log.Info().Msg("👋 Bye")
}
