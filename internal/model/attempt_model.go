package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Attempt is one practised task as stored in history. The user's response
// itself is never stored, only the score it earned.
type Attempt struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID    uuid.UUID        `gorm:"type:uuid;index" json:"session_id"`
	TaskType     TaskType         `gorm:"type:varchar(50);index" json:"task_type"`
	Prompt       string           `gorm:"type:text" json:"prompt"`
	OverallScore float64          `gorm:"type:float" json:"overall_score"`
	MaxScore     float64          `gorm:"type:float" json:"max_score"`
	Summary      string           `gorm:"type:text" json:"summary"`
	Embedding    *pgvector.Vector `gorm:"type:vector(3072)" json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
}

func (a *Attempt) TableName() string {
	return "attempts"
}
