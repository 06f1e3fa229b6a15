package ui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a thin wrapper over the coordinator REST API.
type Client struct {
	BaseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

type AgentEntry struct {
	AgentID       string     `json:"agent_id"`
	Status        string     `json:"status"`
	FirstSeen     time.Time  `json:"first_seen"`
	LastConnected *time.Time `json:"last_connected"`
	Metadata      string     `json:"metadata"`
}

type CommandEntry struct {
	CommandID     string     `json:"command_id"`
	AgentID       string     `json:"agent_id"`
	Command       string     `json:"command"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	Stdout        string     `json:"stdout"`
	Stderr        string     `json:"stderr"`
	ExitCode      *int       `json:"exit_code"`
	ExecutionTime *float64   `json:"execution_time"`
	ErrorMessage  string     `json:"error_message"`
}

func (c *Client) get(path string, out any) error {
	resp, err := c.http.Get(c.BaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Reason != "" {
			return fmt.Errorf("%s (%s)", e.Error, e.Reason)
		}
		return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ListAgents() ([]AgentEntry, error) {
	var out struct {
		Agents []AgentEntry `json:"agents"`
	}
	if err := c.get("/agents", &out); err != nil {
		return nil, err
	}
	return out.Agents, nil
}

func (c *Client) AgentCommands(agentID string, limit int) ([]CommandEntry, error) {
	var out struct {
		Commands []CommandEntry `json:"commands"`
	}
	if err := c.get(fmt.Sprintf("/agents/%s/commands?limit=%d", agentID, limit), &out); err != nil {
		return nil, err
	}
	return out.Commands, nil
}

func (c *Client) Submit(agentID, command string, timeout, priority int) (string, error) {
	body, err := json.Marshal(map[string]any{
		"command":  command,
		"timeout":  timeout,
		"priority": priority,
	})
	if err != nil {
		return "", err
	}
	resp, err := c.http.Post(c.BaseURL+"/agents/"+agentID+"/commands", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		CommandID string `json:"command_id"`
		Error     string `json:"error"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		if out.Reason != "" {
			return "", fmt.Errorf("%s (%s)", out.Error, out.Reason)
		}
		return "", fmt.Errorf("submit failed: HTTP %d", resp.StatusCode)
	}
	return out.CommandID, nil
}

func (c *Client) Statistics() (map[string]any, error) {
	var out map[string]any
	if err := c.get("/statistics", &out); err != nil {
		return nil, err
	}
	return out, nil
}
