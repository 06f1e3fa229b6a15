package repo

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/GluM1262/remoteshell-manager/backend/app/models"
)

var ErrUnknownAgent = errors.New("unknown agent")

type AgentRepository struct {
	db *gorm.DB
}

func NewAgentRepository(db *gorm.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

// Upsert creates the agent row on first sight (setting first_seen) or
// refreshes its metadata on later connects.
func (r *AgentRepository) Upsert(agentID, metadata string) error {
	var existing models.Agent
	err := r.db.Where("agent_id = ?", agentID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		now := time.Now().UTC()
		return r.db.Create(&models.Agent{
			AgentID:   agentID,
			Status:    models.AgentOffline,
			FirstSeen: now,
			Metadata:  metadata,
		}).Error
	}
	if err != nil {
		return err
	}
	if metadata == "" {
		return nil
	}
	return r.db.Model(&models.Agent{}).
		Where("agent_id = ?", agentID).
		Update("metadata", metadata).Error
}

// Mark updates the agent status; going online also stamps
// last_connected.
func (r *AgentRepository) Mark(agentID, status string) error {
	updates := map[string]any{"status": status}
	if status == models.AgentOnline {
		updates["last_connected"] = time.Now().UTC()
	}
	res := r.db.Model(&models.Agent{}).Where("agent_id = ?", agentID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnknownAgent
	}
	return nil
}

func (r *AgentRepository) Get(agentID string) (*models.Agent, error) {
	var a models.Agent
	if err := r.db.Where("agent_id = ?", agentID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownAgent
		}
		return nil, err
	}
	return &a, nil
}

func (r *AgentRepository) List() ([]models.Agent, error) {
	var agents []models.Agent
	if err := r.db.Order("last_connected DESC").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

// MarkAllOffline is run at coordinator startup: no session survives a
// restart, so every row claiming online is stale.
func (r *AgentRepository) MarkAllOffline() error {
	return r.db.Model(&models.Agent{}).
		Where("status = ?", models.AgentOnline).
		Update("status", models.AgentOffline).Error
}
