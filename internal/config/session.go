package config

import (
	"sync"
	"time"
)

type SessionConfig struct {
	DescribeImagePrep   int
	DescribeImageAnswer int
	EssaySeconds        int
	SummarySeconds      int
	IdleTimeout         time.Duration
}

var (
	sessionConfig *SessionConfig
	sessionOnce   sync.Once
)

func LoadSessionConfig() *SessionConfig {
	sessionOnce.Do(func() {
		sessionConfig = &SessionConfig{
			DescribeImagePrep:   getEnvInt("DESCRIBE_IMAGE_PREP_SECONDS", 25),
			DescribeImageAnswer: getEnvInt("DESCRIBE_IMAGE_ANSWER_SECONDS", 40),
			EssaySeconds:        getEnvInt("ESSAY_SECONDS", 20*60),
			SummarySeconds:      getEnvInt("SUMMARY_SECONDS", 10*60),
			IdleTimeout:         time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		}
	})
	return sessionConfig
}
