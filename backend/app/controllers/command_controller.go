package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/GluM1262/remoteshell-manager/backend/app/dto"
	"github.com/GluM1262/remoteshell-manager/backend/app/models"
	"github.com/GluM1262/remoteshell-manager/backend/app/queue"
	"github.com/GluM1262/remoteshell-manager/backend/app/repo"
	"github.com/GluM1262/remoteshell-manager/policy"
)

type CommandController struct {
	Agents   *repo.AgentRepository
	Commands *repo.CommandRepository
	Engine   *queue.Engine
}

func NewCommandController(agents *repo.AgentRepository, commands *repo.CommandRepository, e *queue.Engine) *CommandController {
	return &CommandController{Agents: agents, Commands: commands, Engine: e}
}

func (c *CommandController) submitOne(agentID string, req dto.SubmitCommandRequest) (*models.Command, int, string, string) {
	if _, err := c.Agents.Get(agentID); err != nil {
		if errors.Is(err, repo.ErrUnknownAgent) {
			return nil, http.StatusNotFound, "unknown agent", ""
		}
		return nil, http.StatusServiceUnavailable, "store unavailable", ""
	}
	cmd, err := c.Engine.Submit(agentID, req.Command, req.Timeout, req.Priority)
	if err == nil {
		return cmd, http.StatusOK, "", ""
	}
	var rej *policy.Rejection
	switch {
	case errors.As(err, &rej):
		return nil, http.StatusBadRequest, "validation rejected", string(rej.Reason)
	case errors.Is(err, queue.ErrQueueFull):
		return nil, http.StatusTooManyRequests, "queue full", ""
	case errors.Is(err, repo.ErrDuplicateID):
		return nil, http.StatusConflict, "command id conflict", ""
	default:
		return nil, http.StatusServiceUnavailable, "store unavailable", ""
	}
}

// Submit accepts one command for one agent.
func (c *CommandController) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	cmd, status, msg, reason := c.submitOne(r.PathValue("id"), req)
	if cmd == nil {
		writeError(w, status, msg, reason)
		return
	}
	writeJSON(w, http.StatusOK, dto.SubmitCommandResponse{
		CommandID: cmd.CommandID,
		AgentID:   cmd.AgentID,
		Status:    cmd.Status,
		Timeout:   cmd.TimeoutSeconds,
		Priority:  cmd.Priority,
	})
}

// Bulk fans one command out to many agents; each target gets its own
// verdict.
func (c *CommandController) Bulk(w http.ResponseWriter, r *http.Request) {
	var req dto.BulkSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" || len(req.AgentIDs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	results := make([]dto.BulkSubmitResult, 0, len(req.AgentIDs))
	for _, agentID := range req.AgentIDs {
		one := dto.SubmitCommandRequest{Command: req.Command, Timeout: req.Timeout, Priority: req.Priority}
		cmd, _, msg, reason := c.submitOne(agentID, one)
		res := dto.BulkSubmitResult{AgentID: agentID}
		if cmd != nil {
			res.CommandID = cmd.CommandID
			res.Status = cmd.Status
		} else {
			res.Error = msg
			if reason != "" {
				res.Error = msg + ": " + reason
			}
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (c *CommandController) Get(w http.ResponseWriter, r *http.Request) {
	cmd, err := c.Commands.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repo.ErrCommandNotFound) {
			writeError(w, http.StatusNotFound, "command not found", "")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
		return
	}
	writeJSON(w, http.StatusOK, dto.FromCommand(cmd))
}

func filterFromQuery(r *http.Request) repo.Filter {
	q := r.URL.Query()
	f := repo.Filter{
		AgentID: q.Get("agent_id"),
		Status:  q.Get("status"),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = v
	}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		f.CreatedAfter = &t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		f.CreatedBefore = &t
	}
	return f
}

func (c *CommandController) List(w http.ResponseWriter, r *http.Request) {
	cmds, err := c.Commands.List(filterFromQuery(r))
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

// Cancel removes a still-pending command; anything later is refused.
func (c *CommandController) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := c.Engine.Cancel(id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"command_id": id, "status": models.StatusCancelled})
	case errors.Is(err, repo.ErrCommandNotFound), errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "command not found", "")
	case errors.Is(err, queue.ErrAlreadyDispatched):
		writeError(w, http.StatusConflict, "already dispatched", "")
	default:
		writeError(w, http.StatusServiceUnavailable, "store unavailable", "")
	}
}
