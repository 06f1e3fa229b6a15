package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/GluM1262/remoteshell-manager/backend/app/auth"
	"github.com/GluM1262/remoteshell-manager/backend/app/models"
	"github.com/GluM1262/remoteshell-manager/backend/app/presence"
	"github.com/GluM1262/remoteshell-manager/backend/app/queue"
	"github.com/GluM1262/remoteshell-manager/backend/app/repo"
	"github.com/GluM1262/remoteshell-manager/backend/app/socket"
	"github.com/GluM1262/remoteshell-manager/policy"
	"github.com/GluM1262/remoteshell-manager/protocol"
)

// SocketController is the agent socket entry point: it authenticates
// the token, activates a session, binds it to the queue engine, and
// tears everything down when the socket dies.
type SocketController struct {
	Auth     *auth.Authenticator
	Hub      *socket.Hub
	Engine   *queue.Engine
	Agents   *repo.AgentRepository
	Presence *presence.Publisher
	Policy   func() policy.Policy

	PingInterval time.Duration
	Log          zerolog.Logger
}

func NewSocketController(a *auth.Authenticator, h *socket.Hub, e *queue.Engine, agents *repo.AgentRepository, pub *presence.Publisher, pol func() policy.Policy, pingInterval time.Duration, log zerolog.Logger) *SocketController {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &SocketController{
		Auth: a, Hub: h, Engine: e, Agents: agents, Presence: pub,
		Policy: pol, PingInterval: pingInterval, Log: log,
	}
}

// metadataFromHeaders collects the optional fleet inventory an agent
// announces at connect time.
func metadataFromHeaders(r *http.Request) string {
	meta := map[string]string{}
	for header, key := range map[string]string{
		"X-Agent-Hostname": "hostname",
		"X-Agent-Os":       "os",
		"X-Agent-Arch":     "arch",
	} {
		if v := r.Header.Get(header); v != "" {
			meta[key] = v
		}
	}
	if len(meta) == 0 {
		return ""
	}
	data, _ := json.Marshal(meta)
	return string(data)
}

func (c *SocketController) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	agentID, ok := c.Auth.Resolve(token)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	// Result envelopes can carry up to the output ceiling per stream.
	conn.SetReadLimit(8 << 20)

	if !ok {
		// Token never logged; there is nothing safe to say about it.
		c.Log.Warn().Str("remote", r.RemoteAddr).Msg("agent auth failed")
		_ = conn.Close(protocol.CloseAuthFailed, "invalid token")
		return
	}

	if err := c.Agents.Upsert(agentID, metadataFromHeaders(r)); err != nil {
		c.Log.Error().Err(err).Str("agent_id", agentID).Msg("agent upsert failed")
		_ = conn.Close(websocket.StatusInternalError, "store unavailable")
		return
	}
	if err := c.Agents.Mark(agentID, models.AgentOnline); err != nil {
		c.Log.Error().Err(err).Str("agent_id", agentID).Msg("mark online failed")
	}
	c.Presence.SetOnline(agentID, true)

	s := socket.NewSession(agentID, conn, c.Engine, c.PingInterval, c.Log)

	// Bind before registering: a superseded session's teardown then
	// sees a foreign binding and leaves the new session's state alone.
	if err := c.Engine.Bind(agentID, s); err != nil {
		c.Log.Error().Err(err).Str("agent_id", agentID).Msg("queue bind failed")
		_ = conn.Close(websocket.StatusInternalError, "store unavailable")
		return
	}
	if old := c.Hub.Register(agentID, s); old != nil {
		c.Log.Info().Str("agent_id", agentID).Msg("session superseded")
		// The close handshake waits on the old peer; do not hold up the
		// new session's welcome behind it.
		go old.Close(protocol.CloseSuperseded, "superseded")
	}

	pol := c.Policy()
	if err := s.SendWelcome(protocol.Welcome{
		AgentID:             agentID,
		MaxLength:           pol.MaxLength,
		AllowListEnabled:    pol.AllowListEnabled,
		AllowList:           pol.AllowList,
		AllowShellOperators: pol.AllowShellOperators,
		MaxTimeoutSeconds:   pol.MaxTimeoutSeconds,
		PingIntervalSeconds: int(c.PingInterval / time.Second),
	}); err != nil {
		c.Log.Warn().Err(err).Str("agent_id", agentID).Msg("welcome not delivered")
	}

	c.Log.Info().Str("agent_id", agentID).Msg("agent session active")
	s.Run(r.Context())

	if c.Hub.Unregister(agentID, s) {
		c.Engine.Unbind(agentID, s.ID())
		if err := c.Agents.Mark(agentID, models.AgentOffline); err != nil {
			c.Log.Error().Err(err).Str("agent_id", agentID).Msg("mark offline failed")
		}
		c.Presence.SetOnline(agentID, false)
		c.Log.Info().Str("agent_id", agentID).Msg("agent session closed")
	} else {
		// Superseded: only this session's binding may be cleaned up.
		c.Engine.Unbind(agentID, s.ID())
	}
	s.Close(protocol.CloseGraceful, "session ended")
}
