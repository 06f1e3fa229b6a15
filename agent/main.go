package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GluM1262/remoteshell-manager/agent/internal/config"
	"github.com/GluM1262/remoteshell-manager/agent/internal/connection"
	"github.com/GluM1262/remoteshell-manager/agent/internal/executor"
	"github.com/GluM1262/remoteshell-manager/agent/internal/logger"
)

func main() {
	cfgPath := flag.String("config", "config/agent.yaml", "Path to agent configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.RotateBytes, cfg.Logging.Backups)
	log.Info().
		Str("server", cfg.SocketURL()).
		Bool("allow_list", cfg.Policy.AllowListEnabled).
		Int("max_timeout_s", cfg.Policy.MaxTimeoutSeconds).
		Msg("agent starting")

	exec := executor.New(cfg.Policy.OutputCeiling(), log)
	mgr := connection.New(cfg, exec, log)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	mgr.Run(ctx)
	log.Info().Msg("agent stopped")
}
