// Package protocol defines the JSON frames exchanged between the
// coordinator and an agent over the websocket session, plus the close
// codes both sides use. The frame set is closed: decoding an unknown
// type yields ErrUnknownFrame so callers can drop the frame without
// tearing down the session.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Close codes used on the agent socket.
const (
	CloseGraceful     = 1001
	CloseAuthFailed   = 1008
	CloseSuperseded   = 4000
	CloseLivenessLost = 4001
)

var ErrUnknownFrame = errors.New("unknown frame type")

type Frame interface {
	frameType() string
}

// Command is sent coordinator -> agent to dispatch one command.
type Command struct {
	CommandID string `json:"command_id"`
	Command   string `json:"command"`
	Timeout   int    `json:"timeout"`
	Priority  int    `json:"priority"`
}

// Result is sent agent -> coordinator when a command finished running.
type Result struct {
	CommandID     string  `json:"command_id"`
	Stdout        string  `json:"stdout"`
	Stderr        string  `json:"stderr"`
	ExitCode      int     `json:"exit_code"`
	ExecutionTime float64 `json:"execution_time"`
}

// Error is sent agent -> coordinator when a command could not run at
// all (local validation rejection or spawn failure).
type Error struct {
	CommandID string `json:"command_id"`
	Error     string `json:"error"`
}

type Ping struct{}

type Pong struct{}

// Welcome is sent once by the coordinator when a session activates and
// echoes the effective admission policy back to the agent.
type Welcome struct {
	AgentID             string   `json:"agent_id"`
	MaxLength           int      `json:"max_length"`
	AllowListEnabled    bool     `json:"allow_list_enabled"`
	AllowList           []string `json:"allow_list,omitempty"`
	AllowShellOperators bool     `json:"allow_shell_operators"`
	MaxTimeoutSeconds   int      `json:"max_timeout_seconds"`
	PingIntervalSeconds int      `json:"ping_interval_seconds"`
}

// Cancel is a best-effort hint that the coordinator gave up on a
// command. Agents that predate it drop it as an unknown frame.
type Cancel struct {
	CommandID string `json:"command_id"`
}

func (Command) frameType() string { return "command" }
func (Result) frameType() string  { return "result" }
func (Error) frameType() string   { return "error" }
func (Ping) frameType() string    { return "ping" }
func (Pong) frameType() string    { return "pong" }
func (Welcome) frameType() string { return "welcome" }
func (Cancel) frameType() string  { return "cancel" }

// wire is the single envelope used on the socket. Every field is
// optional except Type; Encode fills only the fields of the variant.
type wire struct {
	Type string `json:"type"`

	CommandID     string   `json:"command_id,omitempty"`
	Command       string   `json:"command,omitempty"`
	Timeout       int      `json:"timeout,omitempty"`
	Priority      int      `json:"priority,omitempty"`
	Stdout        *string  `json:"stdout,omitempty"`
	Stderr        *string  `json:"stderr,omitempty"`
	ExitCode      *int     `json:"exit_code,omitempty"`
	ExecutionTime *float64 `json:"execution_time,omitempty"`
	Error         string   `json:"error,omitempty"`

	AgentID             string   `json:"agent_id,omitempty"`
	MaxLength           int      `json:"max_length,omitempty"`
	AllowListEnabled    *bool    `json:"allow_list_enabled,omitempty"`
	AllowList           []string `json:"allow_list,omitempty"`
	AllowShellOperators *bool    `json:"allow_shell_operators,omitempty"`
	MaxTimeoutSeconds   int      `json:"max_timeout_seconds,omitempty"`
	PingIntervalSeconds int      `json:"ping_interval_seconds,omitempty"`
}

// Encode marshals a frame into its wire envelope.
func Encode(f Frame) ([]byte, error) {
	w := wire{Type: f.frameType()}
	switch v := f.(type) {
	case Command:
		w.CommandID = v.CommandID
		w.Command = v.Command
		w.Timeout = v.Timeout
		w.Priority = v.Priority
	case Result:
		w.CommandID = v.CommandID
		w.Stdout = &v.Stdout
		w.Stderr = &v.Stderr
		w.ExitCode = &v.ExitCode
		w.ExecutionTime = &v.ExecutionTime
	case Error:
		w.CommandID = v.CommandID
		w.Error = v.Error
	case Ping, Pong:
	case Welcome:
		w.AgentID = v.AgentID
		w.MaxLength = v.MaxLength
		w.AllowListEnabled = &v.AllowListEnabled
		w.AllowList = v.AllowList
		w.AllowShellOperators = &v.AllowShellOperators
		w.MaxTimeoutSeconds = v.MaxTimeoutSeconds
		w.PingIntervalSeconds = v.PingIntervalSeconds
	case Cancel:
		w.CommandID = v.CommandID
	default:
		return nil, fmt.Errorf("encode: %w: %T", ErrUnknownFrame, f)
	}
	return json.Marshal(w)
}

// Decode parses one wire envelope. Unknown types return ErrUnknownFrame
// wrapped with the offending type name; malformed JSON returns the
// json error.
func Decode(data []byte) (Frame, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch w.Type {
	case "command":
		return Command{
			CommandID: w.CommandID,
			Command:   w.Command,
			Timeout:   w.Timeout,
			Priority:  w.Priority,
		}, nil
	case "result":
		r := Result{CommandID: w.CommandID}
		if w.Stdout != nil {
			r.Stdout = *w.Stdout
		}
		if w.Stderr != nil {
			r.Stderr = *w.Stderr
		}
		if w.ExitCode != nil {
			r.ExitCode = *w.ExitCode
		}
		if w.ExecutionTime != nil {
			r.ExecutionTime = *w.ExecutionTime
		}
		return r, nil
	case "error":
		return Error{CommandID: w.CommandID, Error: w.Error}, nil
	case "ping":
		return Ping{}, nil
	case "pong":
		return Pong{}, nil
	case "welcome":
		wf := Welcome{
			AgentID:             w.AgentID,
			MaxLength:           w.MaxLength,
			AllowList:           w.AllowList,
			MaxTimeoutSeconds:   w.MaxTimeoutSeconds,
			PingIntervalSeconds: w.PingIntervalSeconds,
		}
		if w.AllowListEnabled != nil {
			wf.AllowListEnabled = *w.AllowListEnabled
		}
		if w.AllowShellOperators != nil {
			wf.AllowShellOperators = *w.AllowShellOperators
		}
		return wf, nil
	case "cancel":
		return Cancel{CommandID: w.CommandID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, w.Type)
	}
}
