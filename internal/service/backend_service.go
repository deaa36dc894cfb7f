package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fadilmartias/pte-practice/internal/config"
	"github.com/go-resty/resty/v2"
)

// BackendServiceInterface is the HTTP boundary to the generation and
// evaluation backend. Implementations never retry.
type BackendServiceInterface interface {
	Get(ctx context.Context, path string) (*BackendResponse, error)
	PostJSON(ctx context.Context, path string, body any) (*BackendResponse, error)
	PostAudio(ctx context.Context, path string, audio []byte, fields map[string]string) (*BackendResponse, error)
}

type BackendResponse struct {
	StatusCode int
	Body       []byte
}

func (r *BackendResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type BackendService struct {
	client *resty.Client
}

func NewBackendService() *BackendService {
	cfg := config.LoadBackendConfig()
	return NewBackendServiceWithURL(cfg.BaseURL, cfg.Timeout)
}

func NewBackendServiceWithURL(baseURL string, timeout time.Duration) *BackendService {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	return &BackendService{client: client}
}

func (s *BackendService) Get(ctx context.Context, path string) (*BackendResponse, error) {
	resp, err := s.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return toBackendResponse(resp), nil
}

func (s *BackendService) PostJSON(ctx context.Context, path string, body any) (*BackendResponse, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return toBackendResponse(resp), nil
}

func (s *BackendService) PostAudio(ctx context.Context, path string, audio []byte, fields map[string]string) (*BackendResponse, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetFileReader("audio", "response.webm", bytes.NewReader(audio)).
		SetFormData(fields).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	return toBackendResponse(resp), nil
}

func toBackendResponse(resp *resty.Response) *BackendResponse {
	if !resp.IsSuccess() {
		log.Printf("Backend %s %s returned %d", resp.Request.Method, resp.Request.URL, resp.StatusCode())
	}
	return &BackendResponse{StatusCode: resp.StatusCode(), Body: resp.Body()}
}
