// Package presence mirrors agent online state into redis so external
// dashboards can watch the fleet without touching the coordinator API.
// Entirely optional: a nil Publisher is a no-op.
package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "remoteshell:agent:"

type Publisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

func New(addr, password string, dbNum int, log zerolog.Logger) *Publisher {
	return &Publisher{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: dbNum}),
		log: log,
	}
}

// SetOnline records the agent's current state. Failures are logged and
// swallowed; presence is advisory, the store stays authoritative.
func (p *Publisher) SetOnline(agentID string, online bool) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status := "offline"
	if online {
		status = "online"
	}
	if err := p.rdb.Set(ctx, keyPrefix+agentID+":status", status, 0).Err(); err != nil {
		p.log.Debug().Err(err).Str("agent_id", agentID).Msg("presence update failed")
	}
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	_ = p.rdb.Close()
}
