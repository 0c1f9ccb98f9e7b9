package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"voicecaption/utils"
)

// Gemini speech output is mono 16-bit PCM at 24 kHz
var geminiPCM = AudioFormat{Container: ContainerS16LE, SampleRate: 24000, Channels: 1}

// GeminiTTSBackend generates speech with a Gemini TTS model. The variant is a prebuilt voice name.
type GeminiTTSBackend struct {
	model      string
	baseURL    string
	keys       *utils.APIKeyPool
	retryAfter time.Duration

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiTTSBackend creates a Gemini backend using keys from the pool
func NewGeminiTTSBackend(model, baseURL string, keys *utils.APIKeyPool, retryAfter time.Duration) (*GeminiTTSBackend, error) {
	if keys == nil {
		return nil, errors.New("gemini backend requires at least one API key")
	}
	return &GeminiTTSBackend{
		model:      model,
		baseURL:    baseURL,
		keys:       keys,
		retryAfter: retryAfter,
		clients:    make(map[string]*genai.Client),
	}, nil
}

// client returns the cached client for key, creating it on first use
func (b *GeminiTTSBackend) client(ctx context.Context, key string) (*genai.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.clients[key]; ok {
		return c, nil
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: b.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	b.clients[key] = c
	return c, nil
}

func (b *GeminiTTSBackend) Name() string { return "gemini" }

func (b *GeminiTTSBackend) Synthesize(ctx context.Context, text, variant string) (AudioClip, error) {
	key, err := b.keys.Acquire()
	if err != nil {
		return AudioClip{}, err
	}

	client, err := b.client(ctx, key)
	if err != nil {
		return AudioClip{}, err
	}

	result, err := client.Models.GenerateContent(ctx, b.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: variant},
			},
		},
	})
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "RESOURCE_EXHAUSTED") {
			b.keys.MarkFailed(key, b.retryAfter)
			return AudioClip{}, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return AudioClip{}, fmt.Errorf("generate content: %w", err)
	}

	var data []byte
	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part.InlineData != nil {
				data = append(data, part.InlineData.Data...)
			}
		}
	}
	return AudioClip{Data: data, Format: geminiPCM}, nil
}
