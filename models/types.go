package models

import (
	"errors"
	"io"
	"strings"
	"time"
)

// VoiceStyle selects one of the two synthesis engine variants
type VoiceStyle string

const (
	VoiceDefault   VoiceStyle = "default"
	VoiceAlternate VoiceStyle = "alternate"
)

// VoiceStyleFromSelector maps the gender-like selector sent by clients to a voice style.
// Unrecognized selectors are kept as-is so the synthesizer can reject them.
func VoiceStyleFromSelector(selector string) VoiceStyle {
	s := strings.ToLower(strings.TrimSpace(selector))
	switch s {
	case "male", "default":
		return VoiceDefault
	case "female", "alternate":
		return VoiceAlternate
	}
	return VoiceStyle(s)
}

// ErrInvalidRequest is returned when a caption request misses a required input
var ErrInvalidRequest = errors.New("invalid caption request")

// CaptionRequest is the unit of work for one pipeline run
type CaptionRequest struct {
	RequestID string
	Video     io.Reader
	Text      string
	Voice     VoiceStyle
}

// Validate checks the preconditions that must hold before any stage runs
func (r CaptionRequest) Validate() error {
	if r.Video == nil {
		return errors.Join(ErrInvalidRequest, errors.New("video is required"))
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("text is required"))
	}
	if strings.TrimSpace(string(r.Voice)) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("voice style is required"))
	}
	return nil
}

// Cue is one timed caption. The composer currently emits a single cue spanning the clip.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// PipelineState tracks progress of one request through the pipeline
type PipelineState string

const (
	StateStart       PipelineState = "start"
	StateIngested    PipelineState = "ingested"
	StateSynthesized PipelineState = "synthesized"
	StateComposed    PipelineState = "composed"
	StateDone        PipelineState = "done"
	StateErrored     PipelineState = "errored"
)

// CompositionResult is the outcome of one CaptionRequest.
// Exactly one of Asset and Failure is set.
type CompositionResult struct {
	RequestID string
	State     PipelineState
	Asset     *MediaAsset
	Failure   *FailureReason

	// Intermediate assets left on storage for later cleanup
	Raw    *MediaAsset
	Speech *MediaAsset

	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the result carries a composed asset
func (r CompositionResult) Succeeded() bool {
	return r.Asset != nil && r.Failure == nil
}

// UploadResponse is returned by the upload endpoint on success
type UploadResponse struct {
	RequestID  string `json:"request_id"`
	VideoID    string `json:"video_id"`
	VideoURL   string `json:"video_url"`
	RawVideoID string `json:"raw_video_id"`
	VoiceID    string `json:"voice_id"`
}

// DeleteRequest names the assets of one upload to remove. It accepts an UploadResponse body.
type DeleteRequest struct {
	VideoID    string `json:"video_id"`
	RawVideoID string `json:"raw_video_id"`
	VoiceID    string `json:"voice_id"`
}

// IDs returns the non-empty asset IDs
func (r DeleteRequest) IDs() []string {
	ids := make([]string, 0, 3)
	for _, id := range []string{r.VideoID, r.RawVideoID, r.VoiceID} {
		if strings.TrimSpace(id) != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// AssetResponse describes an asset without exposing its storage path
type AssetResponse struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Kind        AssetKind `json:"kind"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	DownloadURL string    `json:"download_url"`
}
