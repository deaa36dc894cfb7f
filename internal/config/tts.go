package config

import (
	"os"
	"sync"
)

type TTSConfig struct {
	APIKey   string
	Language string
	RedisURL string
}

var (
	ttsConfig *TTSConfig
	ttsOnce   sync.Once
)

func LoadTTSConfig() *TTSConfig {
	ttsOnce.Do(func() {
		ttsConfig = &TTSConfig{
			APIKey:   os.Getenv("GOOGLE_TTS_API_KEY"),
			Language: getEnv("TTS_LANGUAGE", "en-US"),
			RedisURL: os.Getenv("REDIS_URL"),
		}
	})
	return ttsConfig
}
