package loader

import (
	"context"
	"fmt"

	"github.com/fadilmartias/pte-practice/internal/model"
	"github.com/fadilmartias/pte-practice/internal/service"
	"github.com/tidwall/gjson"
)

// BackendSource reads tasks from GET /generate/<task-type>.
type BackendSource struct {
	backend service.BackendServiceInterface
}

func NewBackendSource(backend service.BackendServiceInterface) *BackendSource {
	return &BackendSource{backend: backend}
}

func (s *BackendSource) Name() string                 { return "backend" }
func (s *BackendSource) Supports(model.TaskType) bool { return true }

func (s *BackendSource) Fetch(ctx context.Context, t model.TaskType) ([]byte, error) {
	resp, err := s.backend.Get(ctx, "/generate/"+string(t))
	if err != nil {
		return nil, &LoadError{Task: t, Reason: "network error", Err: err}
	}
	if !resp.OK() {
		reason := fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		if msg := gjson.GetBytes(resp.Body, "error"); msg.Exists() && msg.String() != "" {
			reason = msg.String()
		}
		return nil, &LoadError{Task: t, Reason: reason}
	}
	return resp.Body, nil
}
