package repository

import (
	"context"
	"time"

	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db}
}

func (r *AttemptRepository) CreateAttempt(ctx context.Context, attempt *model.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// ListAttempts returns one page of history, newest first, and the total count.
func (r *AttemptRepository) ListAttempts(ctx context.Context, page, pageSize int) ([]model.Attempt, int64, error) {
	var (
		attempts []model.Attempt
		total    int64
	)
	q := r.db.WithContext(ctx).Model(&model.Attempt{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&attempts).Error
	return attempts, total, err
}

func (r *AttemptRepository) AllAttempts(ctx context.Context) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&attempts).Error
	return attempts, err
}

// NearestPrompt returns the distance from embedding to the closest prompt
// practised since the given time. found is false when there is none.
func (r *AttemptRepository) NearestPrompt(ctx context.Context, embedding pgvector.Vector, since time.Time) (distance float64, found bool, err error) {
	var rows []struct {
		Distance float64
	}

	// pgvector <-> operator (Euclidean distance)
	err = r.db.WithContext(ctx).Raw(`
        SELECT embedding <-> ? AS distance
        FROM attempts
        WHERE embedding IS NOT NULL AND created_at >= ?
        ORDER BY embedding <-> ?
        LIMIT 1
    `, embedding, since, embedding).Scan(&rows).Error
	if err != nil || len(rows) == 0 {
		return 0, false, err
	}
	return rows[0].Distance, true, nil
}
