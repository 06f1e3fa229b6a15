// Package initialize builds the coordinator from its configuration:
// store, queues, hub, controllers, router. Everything is carried in
// the returned App; there are no package-level singletons.
package initialize

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/GluM1262/remoteshell-manager/backend/app/auth"
	"github.com/GluM1262/remoteshell-manager/backend/app/controllers"
	"github.com/GluM1262/remoteshell-manager/backend/app/db"
	"github.com/GluM1262/remoteshell-manager/backend/app/middleware"
	"github.com/GluM1262/remoteshell-manager/backend/app/models"
	"github.com/GluM1262/remoteshell-manager/backend/app/presence"
	"github.com/GluM1262/remoteshell-manager/backend/app/queue"
	"github.com/GluM1262/remoteshell-manager/backend/app/repo"
	"github.com/GluM1262/remoteshell-manager/backend/app/services"
	"github.com/GluM1262/remoteshell-manager/backend/app/socket"
	"github.com/GluM1262/remoteshell-manager/backend/config"
	"github.com/GluM1262/remoteshell-manager/backend/router"
	"github.com/GluM1262/remoteshell-manager/policy"
)

// App holds every live component of a running coordinator.
type App struct {
	Cfg      *config.Config
	DB       *gorm.DB
	Router   http.Handler
	Hub      *socket.Hub
	Engine   *queue.Engine
	Agents   *repo.AgentRepository
	Commands *repo.CommandRepository
	Presence *presence.Publisher
	Log      zerolog.Logger

	polMu sync.RWMutex
	pol   policy.Policy
}

// CurrentPolicy returns the live admission policy; config hot-reload
// swaps it under the lock.
func (a *App) CurrentPolicy() policy.Policy {
	a.polMu.RLock()
	defer a.polMu.RUnlock()
	return a.pol
}

func (a *App) setPolicy(p policy.Policy) {
	a.polMu.Lock()
	a.pol = p
	a.polMu.Unlock()
}

func Build(cfg *config.Config, log zerolog.Logger) (*App, error) {
	gdb, err := db.Connect(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := gdb.AutoMigrate(&models.Agent{}, &models.Command{}); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	app := &App{Cfg: cfg, DB: gdb, Log: log}
	app.pol = cfg.Policy.ToPolicy()

	app.Agents = repo.NewAgentRepository(gdb)
	app.Commands = repo.NewCommandRepository(gdb)

	// Fail-fast restart policy: whatever was in flight before this
	// process did not survive it.
	if swept, err := app.Commands.SweepInterrupted(); err != nil {
		return nil, fmt.Errorf("sweep interrupted commands: %w", err)
	} else if swept > 0 {
		log.Warn().Int64("count", swept).Msg("in-flight commands from previous run marked failed")
	}
	if err := app.Agents.MarkAllOffline(); err != nil {
		return nil, fmt.Errorf("reset agent status: %w", err)
	}

	if cfg.Redis.Enabled {
		app.Presence = presence.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	}

	app.Hub = socket.NewHub()
	app.Engine = queue.NewEngine(app.Commands, app.CurrentPolicy, cfg.MaxQueueSize, log)

	authn := auth.New(cfg.Tokens, cfg.TokenList, cfg.TokenHashKey)
	log.Info().Int("tokens", authn.Count()).Msg("device tokens loaded")
	if authn.Count() == 0 {
		log.Warn().Msg("no device tokens configured; no agent can connect")
	}

	pingInterval := time.Duration(cfg.PingIntervalSeconds) * time.Second

	statusCtrl := controllers.NewStatusController(app.Hub, app.Engine)
	agentCtrl := controllers.NewAgentController(app.Agents, app.Commands, app.Hub, app.Engine)
	cmdCtrl := controllers.NewCommandController(app.Agents, app.Commands, app.Engine)
	histCtrl := controllers.NewHistoryController(services.NewHistoryService(app.Commands))
	sockCtrl := controllers.NewSocketController(authn, app.Hub, app.Engine, app.Agents, app.Presence, app.CurrentPolicy, pingInterval, log)

	app.Router = middleware.Logging(log, router.New(statusCtrl, agentCtrl, cmdCtrl, histCtrl, sockCtrl))

	cfg.WatchPolicy(func(p policy.Policy) {
		app.setPolicy(p)
		log.Info().Msg("admission policy reloaded from config")
	})

	return app, nil
}

// StartRetentionLoop purges terminal history past the retention window
// every few hours until done is closed.
func (a *App) StartRetentionLoop(done <-chan struct{}) {
	days := a.Cfg.HistoryRetentionDays
	if days <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -days)
				n, err := a.Commands.PurgeOlderThan(cutoff)
				if err != nil {
					a.Log.Error().Err(err).Msg("history retention purge failed")
					continue
				}
				if n > 0 {
					a.Log.Info().Int64("deleted", n).Int("retention_days", days).Msg("history purged")
				}
			}
		}
	}()
}

// Shutdown stops dispatching and closes every session. Pending
// commands stay in the store for the next run.
func (a *App) Shutdown() {
	a.Engine.Stop()
	a.Hub.CloseAll()
	a.Presence.Close()
}
