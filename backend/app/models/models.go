package models

import "time"

// Command lifecycle states. Terminal states are absorbing; every legal
// move between them is enforced by CommandRepository.Transition.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusExecuting = "executing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
	StatusCancelled = "cancelled"
)

const (
	AgentOnline  = "online"
	AgentOffline = "offline"
)

// TerminalStatuses are the absorbing states, in history/purge order.
var TerminalStatuses = []string{StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled}

func IsTerminal(status string) bool {
	for _, s := range TerminalStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Agent is one managed host, keyed by the identity derived from its
// token. Metadata is a free-form JSON object captured at connect time.
type Agent struct {
	ID            uint   `gorm:"primaryKey"`
	AgentID       string `gorm:"uniqueIndex;size:191;not null"`
	Status        string `gorm:"size:16;index"`
	FirstSeen     time.Time
	LastConnected *time.Time
	Metadata      string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Command is one unit of work targeted at exactly one agent, with its
// full lifecycle record.
type Command struct {
	CommandID      string `gorm:"primaryKey;size:64"`
	AgentID        string `gorm:"size:191;index"`
	Command        string `gorm:"type:text"`
	TimeoutSeconds int
	Priority       int
	Status         string    `gorm:"size:16;index"`
	CreatedAt      time.Time `gorm:"index"`
	SentAt         *time.Time
	CompletedAt    *time.Time
	Stdout         string `gorm:"type:text"`
	Stderr         string `gorm:"type:text"`
	ExitCode       *int
	ExecutionTime  *float64
	ErrorMessage   string `gorm:"size:512"`
}
