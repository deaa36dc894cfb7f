package config

import (
	"os"
	"sync"
	"time"
)

type BackendConfig struct {
	BaseURL    string
	Timeout    time.Duration
	TaskSource string
	TaskBank   string
}

var (
	backendConfig *BackendConfig
	backendOnce   sync.Once
)

func LoadBackendConfig() *BackendConfig {
	backendOnce.Do(func() {
		backendConfig = &BackendConfig{
			BaseURL:    getEnv("BACKEND_API_URL", "http://localhost:5001/api"),
			Timeout:    time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 90)) * time.Second,
			TaskSource: getEnv("TASK_SOURCE", "backend"),
			TaskBank:   os.Getenv("TASK_BANK_PDF"),
		}
	})
	return backendConfig
}
