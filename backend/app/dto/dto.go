package dto

import (
	"time"

	"github.com/GluM1262/remoteshell-manager/backend/app/models"
)

type SubmitCommandRequest struct {
	Command  string `json:"command"`
	Timeout  int    `json:"timeout,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

type SubmitCommandResponse struct {
	CommandID string `json:"command_id"`
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
	Timeout   int    `json:"timeout"`
	Priority  int    `json:"priority"`
}

type BulkSubmitRequest struct {
	AgentIDs []string `json:"agent_ids"`
	Command  string   `json:"command"`
	Timeout  int      `json:"timeout,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

type BulkSubmitResult struct {
	AgentID   string `json:"agent_id"`
	CommandID string `json:"command_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

type CommandResponse struct {
	CommandID     string     `json:"command_id"`
	AgentID       string     `json:"agent_id"`
	Command       string     `json:"command"`
	Timeout       int        `json:"timeout"`
	Priority      int        `json:"priority"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Stdout        string     `json:"stdout,omitempty"`
	Stderr        string     `json:"stderr,omitempty"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	ExecutionTime *float64   `json:"execution_time,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

func FromCommand(c *models.Command) CommandResponse {
	return CommandResponse{
		CommandID:     c.CommandID,
		AgentID:       c.AgentID,
		Command:       c.Command,
		Timeout:       c.TimeoutSeconds,
		Priority:      c.Priority,
		Status:        c.Status,
		CreatedAt:     c.CreatedAt,
		SentAt:        c.SentAt,
		CompletedAt:   c.CompletedAt,
		Stdout:        c.Stdout,
		Stderr:        c.Stderr,
		ExitCode:      c.ExitCode,
		ExecutionTime: c.ExecutionTime,
		ErrorMessage:  c.ErrorMessage,
	}
}

type AgentResponse struct {
	AgentID       string     `json:"agent_id"`
	Status        string     `json:"status"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastConnected *time.Time `json:"last_connected,omitempty"`
	Metadata      string     `json:"metadata,omitempty"`
}

func FromAgent(a *models.Agent, online bool) AgentResponse {
	status := models.AgentOffline
	if online {
		status = models.AgentOnline
	}
	return AgentResponse{
		AgentID:       a.AgentID,
		Status:        status,
		FirstSeen:     a.FirstSeen,
		LastConnected: a.LastConnected,
		Metadata:      a.Metadata,
	}
}

type HealthResponse struct {
	Status          string `json:"status"`
	ConnectedAgents int    `json:"connected_agents"`
	LateResultDrops int64  `json:"late_result_drops"`
	Version         string `json:"version"`
}

type CleanupRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
