package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"voicecaption/utils"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// CloudTTSBackend calls the Google Cloud Text-to-Speech REST API.
// The variant is a voice name such as "en-US-Standard-D".
type CloudTTSBackend struct {
	httpClient *http.Client
	endpoint   string
	keys       *utils.APIKeyPool
	retryAfter time.Duration
}

// NewCloudTTSBackend authenticates with the key pool when it has keys, otherwise with
// application default credentials.
func NewCloudTTSBackend(ctx context.Context, endpoint string, keys *utils.APIKeyPool, retryAfter time.Duration) (*CloudTTSBackend, error) {
	var client *http.Client
	if keys == nil {
		var err error
		client, err = google.DefaultClient(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("load default credentials: %w", err)
		}
		client.Timeout = 2 * time.Minute
	} else {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return newCloudTTSBackend(client, endpoint, keys, retryAfter), nil
}

func newCloudTTSBackend(client *http.Client, endpoint string, keys *utils.APIKeyPool, retryAfter time.Duration) *CloudTTSBackend {
	if endpoint == "" {
		endpoint = "https://texttospeech.googleapis.com/v1/text:synthesize"
	}
	return &CloudTTSBackend{httpClient: client, endpoint: endpoint, keys: keys, retryAfter: retryAfter}
}

func (b *CloudTTSBackend) Name() string { return "cloud" }

type cloudTTSRequest struct {
	Input       cloudTTSInput       `json:"input"`
	Voice       cloudTTSVoice       `json:"voice"`
	AudioConfig cloudTTSAudioConfig `json:"audioConfig"`
}

type cloudTTSInput struct {
	Text string `json:"text"`
}

type cloudTTSVoice struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type cloudTTSAudioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type cloudTTSResponse struct {
	AudioContent string `json:"audioContent"`
}

func (b *CloudTTSBackend) Synthesize(ctx context.Context, text, variant string) (AudioClip, error) {
	payload, err := json.Marshal(cloudTTSRequest{
		Input:       cloudTTSInput{Text: text},
		Voice:       cloudTTSVoice{LanguageCode: languageFromVoice(variant), Name: variant},
		AudioConfig: cloudTTSAudioConfig{AudioEncoding: "MP3"},
	})
	if err != nil {
		return AudioClip{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := b.endpoint
	key := ""
	if b.keys != nil {
		key, err = b.keys.Acquire()
		if err != nil {
			return AudioClip{}, err
		}
		endpoint += "?" + url.Values{"key": {key}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return AudioClip{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := doAudioRequest(b.httpClient, req)
	if err != nil {
		if key != "" && errors.Is(err, ErrRateLimited) {
			b.keys.MarkFailed(key, b.retryAfter)
		}
		return AudioClip{}, err
	}

	var resp cloudTTSResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return AudioClip{}, fmt.Errorf("failed to decode response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return AudioClip{}, fmt.Errorf("failed to decode audio content: %w", err)
	}
	return AudioClip{Data: audio, Format: AudioFormat{Container: ContainerMP3}}, nil
}

// languageFromVoice extracts "en-US" from "en-US-Standard-D"
func languageFromVoice(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 2 {
		return voice
	}
	return parts[0] + "-" + parts[1]
}
