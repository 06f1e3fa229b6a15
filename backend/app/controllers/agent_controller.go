package controllers

import (
	"errors"
	"net/http"

	"github.com/GluM1262/remoteshell-manager/backend/app/dto"
	"github.com/GluM1262/remoteshell-manager/backend/app/queue"
	"github.com/GluM1262/remoteshell-manager/backend/app/repo"
	"github.com/GluM1262/remoteshell-manager/backend/app/socket"
)

type AgentController struct {
	Agents   *repo.AgentRepository
	Commands *repo.CommandRepository
	Hub      *socket.Hub
	Engine   *queue.Engine
}

func NewAgentController(agents *repo.AgentRepository, commands *repo.CommandRepository, h *socket.Hub, e *queue.Engine) *AgentController {
	return &AgentController{Agents: agents, Commands: commands, Hub: h, Engine: e}
}

// List returns every known agent with the live-session overlay: the
// hub decides online, the store remembers everything else.
func (c *AgentController) List(w http.ResponseWriter, r *http.Request) {
	agents, err := c.Agents.List()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	out := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		out = append(out, dto.FromAgent(&agents[i], c.Hub.IsOnline(agents[i].AgentID)))
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out, "count": len(out)})
}

func (c *AgentController) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := c.Agents.Get(id)
	if err != nil {
		if errors.Is(err, repo.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, "unknown agent", "")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, dto.FromAgent(a, c.Hub.IsOnline(id)))
}

// History lists the agent's commands, newest first.
func (c *AgentController) History(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := c.Agents.Get(id); err != nil {
		if errors.Is(err, repo.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, "unknown agent", "")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	f := filterFromQuery(r)
	f.AgentID = id
	cmds, err := c.Commands.List(f)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	out := make([]dto.CommandResponse, 0, len(cmds))
	for i := range cmds {
		out = append(out, dto.FromCommand(&cmds[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": out, "count": len(out)})
}

// Queue reports the live queue: pending in dispatch order plus the
// in-flight ids.
func (c *AgentController) Queue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := c.Agents.Get(id); err != nil {
		if errors.Is(err, repo.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, "unknown agent", "")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	snap := c.Engine.QueueSnapshot(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":     snap.AgentID,
		"online":       c.Hub.IsOnline(id),
		"queued_count": len(snap.Pending),
		"in_flight":    snap.InFlight,
		"pending":      snap.Pending,
	})
}
