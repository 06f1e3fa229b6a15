package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/GluM1262/remoteshell-manager/backend/config"
	"github.com/GluM1262/remoteshell-manager/backend/initialize"
	"github.com/GluM1262/remoteshell-manager/backend/server"
)

func main() {
	var (
		cfgPath = flag.String("config", "config/server.yaml", "Path to coordinator configuration file")
		debug   = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log := zerolog.New(cw).With().Timestamp().Logger()
	if *debug {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	app, err := initialize.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build coordinator")
	}

	done := make(chan struct{})
	app.StartRetentionLoop(done)

	srv := server.NewHTTPServer(cfg.ListenAddr, app.Router)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		app.Shutdown()
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("coordinator listening")
	if err := srv.Start(cfg.TLSCert, cfg.TLSKey); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
	log.Info().Msg("coordinator stopped")
}
