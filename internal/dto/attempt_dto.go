package dto

import (
	"time"

	"github.com/google/uuid"
)

type AttemptDTO struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	TaskType     string    `json:"task_type"`
	Prompt       string    `json:"prompt"`
	OverallScore float64   `json:"overall_score"`
	MaxScore     float64   `json:"max_score"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"created_at"`
}
