package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fadilmartias/pte-practice/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"
)

var ErrTTSUnavailable = errors.New("text to speech unavailable")

const ttsCacheTTL = 7 * 24 * time.Hour

// AudioCache stores synthesized prompt audio.
type AudioCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

type TTSServiceInterface interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// TTSService speaks prompts for clients without native speech synthesis.
type TTSService struct {
	client   *resty.Client
	apiKey   string
	language string
	cache    AudioCache
	mu       sync.Mutex
}

func NewTTSService(cache AudioCache) *TTSService {
	cfg := config.LoadTTSConfig()
	return NewTTSServiceWithURL("https://texttospeech.googleapis.com", cfg.APIKey, cfg.Language, cache)
}

func NewTTSServiceWithURL(baseURL, apiKey, language string, cache AudioCache) *TTSService {
	if cache == nil {
		cache = NewMemoryAudioCache()
	}
	return &TTSService{
		client:   resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
		apiKey:   apiKey,
		language: language,
		cache:    cache,
	}
}

func (s *TTSService) cacheKey(text string) string {
	h := sha256.Sum256([]byte(s.language + ":" + text))
	return "tts:" + hex.EncodeToString(h[:16])
}

func (s *TTSService) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	key := s.cacheKey(text)
	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return data, "audio/mpeg", nil
	} else if err != nil {
		log.Printf("TTS cache read failed: %v", err)
	}

	if s.apiKey == "" {
		return nil, "", ErrTTSUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return data, "audio/mpeg", nil
	}

	data, err := s.callGoogleTTS(ctx, text)
	if err != nil {
		log.Printf("TTS API error for %q: %v", text, err)
		return nil, "", fmt.Errorf("%w: %v", ErrTTSUnavailable, err)
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		log.Printf("TTS cache write failed: %v", err)
	}
	return data, "audio/mpeg", nil
}

func (s *TTSService) callGoogleTTS(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("key", s.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"input":       map[string]string{"text": text},
			"voice":       map[string]string{"languageCode": s.language, "ssmlGender": "FEMALE"},
			"audioConfig": map[string]string{"audioEncoding": "MP3"},
		}).
		Post("/v1/text:synthesize")
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("TTS API error %d: %s", resp.StatusCode(), resp.String())
	}

	content := gjson.GetBytes(resp.Body(), "audioContent").String()
	if content == "" {
		return nil, fmt.Errorf("TTS response has no audioContent")
	}
	audio, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return audio, nil
}

type redisAudioCache struct {
	client *redis.Client
}

func NewRedisAudioCache(client *redis.Client) AudioCache {
	return &redisAudioCache{client: client}
}

func (c *redisAudioCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *redisAudioCache) Set(ctx context.Context, key string, data []byte) error {
	return c.client.Set(ctx, key, data, ttsCacheTTL).Err()
}

const memoryCacheSize = 512

type memoryAudioCache struct {
	items *expirable.LRU[string, []byte]
}

// NewMemoryAudioCache keeps the most recently used prompts in process for
// the same TTL the Redis cache uses.
func NewMemoryAudioCache() AudioCache {
	return newMemoryAudioCache(memoryCacheSize, ttsCacheTTL)
}

func newMemoryAudioCache(size int, ttl time.Duration) *memoryAudioCache {
	return &memoryAudioCache{items: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *memoryAudioCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, ok := c.items.Get(key)
	return data, ok, nil
}

func (c *memoryAudioCache) Set(_ context.Context, key string, data []byte) error {
	c.items.Add(key, data)
	return nil
}
