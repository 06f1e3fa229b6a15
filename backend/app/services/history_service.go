package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/GluM1262/remoteshell-manager/backend/app/dto"
	"github.com/GluM1262/remoteshell-manager/backend/app/repo"
)

// HistoryService wraps the analytics side of the command store:
// filtered export, retention cleanup, and statistics.
type HistoryService struct {
	commands *repo.CommandRepository
}

func NewHistoryService(commands *repo.CommandRepository) *HistoryService {
	return &HistoryService{commands: commands}
}

var csvHeader = []string{
	"command_id", "agent_id", "command", "status",
	"created_at", "sent_at", "completed_at",
	"stdout", "stderr", "exit_code", "execution_time", "error_message",
}

// ExportCSV streams matching commands as CSV.
func (s *HistoryService) ExportCSV(w io.Writer, f repo.Filter) error {
	cmds, err := s.commands.List(f)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	fmtTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	}
	for i := range cmds {
		c := &cmds[i]
		exitCode := ""
		if c.ExitCode != nil {
			exitCode = strconv.Itoa(*c.ExitCode)
		}
		execTime := ""
		if c.ExecutionTime != nil {
			execTime = strconv.FormatFloat(*c.ExecutionTime, 'f', -1, 64)
		}
		row := []string{
			c.CommandID, c.AgentID, c.Command, c.Status,
			c.CreatedAt.UTC().Format(time.RFC3339), fmtTime(c.SentAt), fmtTime(c.CompletedAt),
			c.Stdout, c.Stderr, exitCode, execTime, c.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportJSON streams matching commands as a JSON array.
func (s *HistoryService) ExportJSON(w io.Writer, f repo.Filter) error {
	cmds, err := s.commands.List(f)
	if err != nil {
		return err
	}
	out := make([]dto.CommandResponse, 0, len(cmds))
	for i := range cmds {
		out = append(out, dto.FromCommand(&cmds[i]))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Cleanup deletes terminal commands older than the given number of
// days and reports the row count.
func (s *HistoryService) Cleanup(olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("older_than_days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	return s.commands.PurgeOlderThan(cutoff)
}

func (s *HistoryService) Statistics(f repo.Filter) (*repo.Stats, error) {
	return s.commands.Statistics(f)
}
