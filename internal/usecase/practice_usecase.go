package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fadilmartias/pte-practice/internal/dto"
	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/response"
	"github.com/fadilmartias/pte-practice/internal/service"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/xuri/excelize/v2"
)

const (
	defaultDedupeDistance = 0.35
	defaultDedupeWindow   = 7 * 24 * time.Hour
)

type AttemptRepositoryInterface interface {
	CreateAttempt(ctx context.Context, attempt *model.Attempt) error
	ListAttempts(ctx context.Context, page, pageSize int) ([]model.Attempt, int64, error)
	AllAttempts(ctx context.Context) ([]model.Attempt, error)
	NearestPrompt(ctx context.Context, embedding pgvector.Vector, since time.Time) (float64, bool, error)
}

// PracticeUsecase keeps the practice history: it records every feedback
// shown, serves and exports it, and tells the generator which prompts were
// practised recently.
type PracticeUsecase struct {
	attemptRepo AttemptRepositoryInterface
	gemini      service.GeminiServiceInterface

	MaxDistance float64
	Window      time.Duration
	now         func() time.Time
}

// NewPracticeUsecase builds the history usecase. gemini may be nil, in which
// case attempts are stored without embeddings and nothing counts as seen.
func NewPracticeUsecase(attemptRepo AttemptRepositoryInterface, gemini service.GeminiServiceInterface) *PracticeUsecase {
	return &PracticeUsecase{
		attemptRepo: attemptRepo,
		gemini:      gemini,
		MaxDistance: defaultDedupeDistance,
		Window:      defaultDedupeWindow,
		now:         time.Now,
	}
}

func (uc *PracticeUsecase) Record(ctx context.Context, sessionID string, payload *model.TaskPayload, fb *model.Feedback) error {
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", sessionID, err)
	}
	attempt := &model.Attempt{
		ID:           uuid.New(),
		SessionID:    sid,
		TaskType:     fb.TaskType,
		OverallScore: fb.OverallScore,
		MaxScore:     fb.MaxScore,
		Summary:      fb.Summary,
		CreatedAt:    uc.now(),
	}
	if payload != nil {
		attempt.Prompt = payload.PromptText()
	}

	if uc.gemini != nil && attempt.Prompt != "" {
		emb, err := uc.gemini.GenerateEmbedding(ctx, attempt.Prompt)
		if err != nil {
			log.Printf("Embedding failed for attempt %s: %v", attempt.ID, err)
		} else {
			v := pgvector.NewVector(emb)
			attempt.Embedding = &v
		}
	}
	return uc.attemptRepo.CreateAttempt(ctx, attempt)
}

// SeenRecently reports whether text is within MaxDistance of a prompt
// practised inside Window.
func (uc *PracticeUsecase) SeenRecently(ctx context.Context, text string) (bool, error) {
	if uc.gemini == nil {
		return false, nil
	}
	emb, err := uc.gemini.GenerateEmbedding(ctx, text)
	if err != nil {
		return false, err
	}
	dist, found, err := uc.attemptRepo.NearestPrompt(ctx, pgvector.NewVector(emb), uc.now().Add(-uc.Window))
	if err != nil || !found {
		return false, err
	}
	return dist <= uc.MaxDistance, nil
}

func (uc *PracticeUsecase) History(ctx context.Context, page, pageSize int) ([]dto.AttemptDTO, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	attempts, total, err := uc.attemptRepo.ListAttempts(ctx, page, pageSize)
	if err != nil {
		return nil, nil, err
	}
	out := make([]dto.AttemptDTO, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, toAttemptDTO(a))
	}
	return out, response.NewPagination(page, pageSize, total), nil
}

// ExportHistory writes every attempt to an xlsx workbook.
func (uc *PracticeUsecase) ExportHistory(ctx context.Context) ([]byte, error) {
	attempts, err := uc.attemptRepo.AllAttempts(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheetName := "History"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Date", "Task", "Prompt", "Score", "Max Score", "Summary"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, a := range attempts {
		row := []any{
			a.CreatedAt.Format(time.RFC3339),
			a.TaskType.Title(),
			a.Prompt,
			a.OverallScore,
			a.MaxScore,
			a.Summary,
		}
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func toAttemptDTO(a model.Attempt) dto.AttemptDTO {
	return dto.AttemptDTO{
		ID:           a.ID,
		SessionID:    a.SessionID,
		TaskType:     string(a.TaskType),
		Prompt:       a.Prompt,
		OverallScore: a.OverallScore,
		MaxScore:     a.MaxScore,
		Summary:      a.Summary,
		CreatedAt:    a.CreatedAt,
	}
}
