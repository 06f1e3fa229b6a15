package repo

import (
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/GluM1262/remoteshell-manager/backend/app/models"
)

var (
	ErrCommandNotFound = errors.New("command not found")
	ErrDuplicateID     = errors.New("duplicate command id")
)

// Filter narrows list and statistics queries. Zero values mean "no
// constraint"; Limit defaults to 100.
type Filter struct {
	AgentID       string
	Status        string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

type Stats struct {
	Total            int64            `json:"total_commands"`
	ByStatus         map[string]int64 `json:"by_status"`
	AvgExecutionTime float64          `json:"avg_execution_time"`
}

type CommandRepository struct {
	db *gorm.DB
}

func NewCommandRepository(db *gorm.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Insert writes a new pending command. The command_id is the primary
// key, so a collision surfaces as ErrDuplicateID.
func (r *CommandRepository) Insert(cmd *models.Command) error {
	if cmd.Status == "" {
		cmd.Status = models.StatusPending
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	if err := r.db.Create(cmd).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateID
		}
		return err
	}
	return nil
}

// Transition is the compare-and-set at the heart of the lifecycle: the
// row moves to `to` only if its status is currently in `from`, and the
// patch columns are written in the same statement. Concurrent racers
// see exactly one true return.
func (r *CommandRepository) Transition(commandID string, from []string, to string, patch map[string]any) (bool, error) {
	updates := map[string]any{"status": to}
	for k, v := range patch {
		updates[k] = v
	}
	res := r.db.Model(&models.Command{}).
		Where("command_id = ? AND status IN ?", commandID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *CommandRepository) Get(commandID string) (*models.Command, error) {
	var c models.Command
	if err := r.db.Where("command_id = ?", commandID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommandNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *CommandRepository) apply(f Filter) *gorm.DB {
	q := r.db.Model(&models.Command{})
	if f.AgentID != "" {
		q = q.Where("agent_id = ?", f.AgentID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CreatedAfter != nil {
		q = q.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *f.CreatedBefore)
	}
	return q
}

// List returns commands matching the filter, newest first.
func (r *CommandRepository) List(f Filter) ([]models.Command, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var cmds []models.Command
	err := r.apply(f).
		Order("created_at DESC").
		Limit(limit).
		Offset(f.Offset).
		Find(&cmds).Error
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

// PendingForAgent returns the agent's queued commands in dispatch
// order: highest priority first, oldest first within a priority. Used
// to rebuild the in-memory queue on bind.
func (r *CommandRepository) PendingForAgent(agentID string) ([]models.Command, error) {
	var cmds []models.Command
	err := r.db.
		Where("agent_id = ? AND status = ?", agentID, models.StatusPending).
		Order("priority DESC, created_at ASC").
		Find(&cmds).Error
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

// PurgeOlderThan deletes terminal commands created before the cutoff
// and reports how many rows went.
func (r *CommandRepository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.
		Where("status IN ? AND created_at < ?", models.TerminalStatuses, cutoff).
		Delete(&models.Command{})
	return res.RowsAffected, res.Error
}

// Statistics returns per-status counts plus the average execution time
// over completed commands, within the filter.
func (r *CommandRepository) Statistics(f Filter) (*Stats, error) {
	stats := &Stats{ByStatus: make(map[string]int64)}

	type row struct {
		Status string
		N      int64
	}
	var rows []row
	if err := r.apply(f).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, rw := range rows {
		stats.ByStatus[rw.Status] = rw.N
		stats.Total += rw.N
	}

	var avg sql.NullFloat64
	q := r.apply(f).Where("status = ?", models.StatusCompleted)
	if err := q.Select("AVG(execution_time)").Scan(&avg).Error; err != nil {
		return nil, err
	}
	if avg.Valid {
		stats.AvgExecutionTime = avg.Float64
	}
	return stats, nil
}

// SweepInterrupted fails every command left in sent/executing. Run once
// at coordinator startup: whatever was in flight did not survive the
// restart (restart policy is fail-fast, not re-correlation).
func (r *CommandRepository) SweepInterrupted() (int64, error) {
	now := time.Now().UTC()
	res := r.db.Model(&models.Command{}).
		Where("status IN ?", []string{models.StatusSent, models.StatusExecuting}).
		Updates(map[string]any{
			"status":        models.StatusFailed,
			"error_message": "coordinator restart",
			"completed_at":  now,
		})
	return res.RowsAffected, res.Error
}
