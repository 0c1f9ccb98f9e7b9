package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Audio containers a backend may return
const (
	ContainerMP3   = "mp3"
	ContainerS16LE = "s16le"
)

// AudioFormat describes the encoding of an AudioClip
type AudioFormat struct {
	Container  string
	SampleRate int
	Channels   int
}

// InputArgs returns the ffmpeg input flags needed to read raw PCM. Empty for containers ffmpeg detects.
func (f AudioFormat) InputArgs() []string {
	if f.Container != ContainerS16LE {
		return nil
	}
	return []string{"-f", "s16le", "-ar", fmt.Sprint(f.SampleRate), "-ac", fmt.Sprint(f.Channels)}
}

// Ext is the file extension used for chunk files of this format
func (f AudioFormat) Ext() string {
	if f.Container == ContainerS16LE {
		return ".pcm"
	}
	return "." + f.Container
}

// AudioClip is the raw output of one backend call
type AudioClip struct {
	Data   []byte
	Format AudioFormat
}

// SpeechBackend converts one chunk of text into audio using an engine variant
type SpeechBackend interface {
	Name() string
	Synthesize(ctx context.Context, text, variant string) (AudioClip, error)
}

// ErrRateLimited marks a backend response that asks the caller to slow down
var ErrRateLimited = errors.New("speech backend rate limited")

// TranslateBackend uses the Google Translate TTS endpoint. The variant is the host TLD,
// which selects the accent ("com" for US, "com.au" for Australian English).
type TranslateBackend struct {
	httpClient *http.Client
	baseURL    string
	language   string
}

// NewTranslateBackend creates a translate backend. baseURL must contain one %s for the TLD.
func NewTranslateBackend(httpClient *http.Client, baseURL, language string) *TranslateBackend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if !strings.Contains(baseURL, "%s") {
		baseURL = "https://translate.google.%s"
	}
	if language == "" {
		language = "en"
	}
	return &TranslateBackend{httpClient: httpClient, baseURL: baseURL, language: language}
}

func (b *TranslateBackend) Name() string { return "translate" }

func (b *TranslateBackend) Synthesize(ctx context.Context, text, variant string) (AudioClip, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("q", text)
	q.Set("tl", b.language)
	q.Set("client", "tw-ob")
	q.Set("total", "1")
	q.Set("idx", "0")
	q.Set("textlen", fmt.Sprint(len([]rune(text))))
	endpoint := fmt.Sprintf(b.baseURL, variant) + "/translate_tts?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AudioClip{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", "http://translate.google.com/")

	body, err := doAudioRequest(b.httpClient, req)
	if err != nil {
		return AudioClip{}, err
	}
	return AudioClip{Data: body, Format: AudioFormat{Container: ContainerMP3}}, nil
}

// doAudioRequest sends req and returns the body of a 200 response
func doAudioRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
