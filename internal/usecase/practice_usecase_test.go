package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type mockAttemptRepo struct {
	mock.Mock
}

func (m *mockAttemptRepo) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockAttemptRepo) ListAttempts(ctx context.Context, page, pageSize int) ([]model.Attempt, int64, error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).([]model.Attempt), args.Get(1).(int64), args.Error(2)
}

func (m *mockAttemptRepo) AllAttempts(ctx context.Context) ([]model.Attempt, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Attempt), args.Error(1)
}

func (m *mockAttemptRepo) NearestPrompt(ctx context.Context, emb pgvector.Vector, since time.Time) (float64, bool, error) {
	args := m.Called(ctx, emb, since)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

type mockGemini struct {
	mock.Mock
}

func (m *mockGemini) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockGemini) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	v, _ := args.Get(0).([]float32)
	return v, args.Error(1)
}

func TestRecordStoresSummaryWithEmbedding(t *testing.T) {
	repo := &mockAttemptRepo{}
	gem := &mockGemini{}
	uc := NewPracticeUsecase(repo, gem)
	sid := uuid.New()

	gem.On("GenerateEmbedding", mock.Anything, "Topic X").Return([]float32{0.1, 0.2}, nil)
	repo.On("CreateAttempt", mock.Anything, mock.MatchedBy(func(a *model.Attempt) bool {
		return a.SessionID == sid && a.TaskType == model.TaskEssay && a.Prompt == "Topic X" &&
			a.OverallScore == 60 && a.MaxScore == 90 && a.Embedding != nil
	})).Return(nil).Once()

	err := uc.Record(context.Background(), sid.String(),
		&model.TaskPayload{Type: model.TaskEssay, Essay: &model.EssayPayload{Prompt: "Topic X"}},
		&model.Feedback{TaskType: model.TaskEssay, OverallScore: 60, MaxScore: 90, Summary: "ok"})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRecordWithoutEmbeddingOnFailure(t *testing.T) {
	repo := &mockAttemptRepo{}
	gem := &mockGemini{}
	uc := NewPracticeUsecase(repo, gem)

	gem.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("quota"))
	repo.On("CreateAttempt", mock.Anything, mock.MatchedBy(func(a *model.Attempt) bool {
		return a.Embedding == nil
	})).Return(nil).Once()

	err := uc.Record(context.Background(), uuid.NewString(),
		&model.TaskPayload{Type: model.TaskReadAloud, ReadAloud: &model.ReadAloudPayload{Text: "hello"}},
		&model.Feedback{TaskType: model.TaskReadAloud})
	require.NoError(t, err)

	err = uc.Record(context.Background(), "not-a-uuid", nil, &model.Feedback{})
	assert.Error(t, err)
	repo.AssertNumberOfCalls(t, "CreateAttempt", 1)
	gem.AssertCalled(t, "GenerateEmbedding", mock.Anything, "hello")
}

func TestSeenRecently(t *testing.T) {
	repo := &mockAttemptRepo{}
	gem := &mockGemini{}
	uc := NewPracticeUsecase(repo, gem)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	uc.now = func() time.Time { return fixed }

	gem.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{1, 0}, nil)
	repo.On("NearestPrompt", mock.Anything, mock.Anything, fixed.Add(-uc.Window)).Return(0.1, true, nil).Once()
	repo.On("NearestPrompt", mock.Anything, mock.Anything, fixed.Add(-uc.Window)).Return(0.9, true, nil).Once()
	repo.On("NearestPrompt", mock.Anything, mock.Anything, fixed.Add(-uc.Window)).Return(0.0, false, nil).Once()

	for _, want := range []bool{true, false, false} {
		seen, err := uc.SeenRecently(context.Background(), "passage")
		require.NoError(t, err)
		assert.Equal(t, want, seen)
	}

	seen, err := NewPracticeUsecase(repo, nil).SeenRecently(context.Background(), "passage")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHistoryPagination(t *testing.T) {
	repo := &mockAttemptRepo{}
	uc := NewPracticeUsecase(repo, nil)
	repo.On("ListAttempts", mock.Anything, 2, 20).
		Return([]model.Attempt{{ID: uuid.New(), TaskType: model.TaskReadAloud, OverallScore: 50, MaxScore: 90}}, int64(21), nil)

	items, page, err := uc.History(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "read-aloud", items[0].TaskType)
	assert.Equal(t, int64(2), page.TotalPages)
	assert.Equal(t, 21, page.From)
	assert.Equal(t, 21, page.To)
	assert.False(t, page.HasMore)
}

func TestExportHistory(t *testing.T) {
	repo := &mockAttemptRepo{}
	uc := NewPracticeUsecase(repo, nil)
	repo.On("AllAttempts", mock.Anything).Return([]model.Attempt{
		{TaskType: model.TaskEssay, Prompt: "Topic X", OverallScore: 72, MaxScore: 90, Summary: "Solid", CreatedAt: time.Now()},
		{TaskType: model.TaskSummarizeWrittenText, Prompt: "Passage", OverallScore: 6, MaxScore: 7, CreatedAt: time.Now()},
	}, nil)

	data, err := uc.ExportHistory(context.Background())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("History")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Date", "Task", "Prompt", "Score", "Max Score", "Summary"}, rows[0])
	assert.Equal(t, "Essay Writing", rows[1][1])
	assert.Equal(t, "72", rows[1][3])
	assert.Equal(t, "Summarize Written Text", rows[2][1])
}
