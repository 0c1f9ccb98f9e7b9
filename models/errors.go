package models

import (
	"errors"
	"fmt"
)

// Stage names a pipeline stage that can fail
type Stage string

const (
	StageVideoIngest     Stage = "video_ingest"
	StageSpeechSynthesis Stage = "speech_synthesis"
	StageComposition     Stage = "composition"
)

// PublicMessage is the user-facing text for a failure at this stage
func (s Stage) PublicMessage() string {
	switch s {
	case StageVideoIngest:
		return "Failed to save video file"
	case StageSpeechSynthesis:
		return "Failed to generate AI voice"
	case StageComposition:
		return "Failed to create video"
	}
	return "An internal error occurred. Please try again."
}

// CompositionStep names a sub-step of the composition engine
type CompositionStep string

const (
	StepProbe   CompositionStep = "probe"
	StepAlign   CompositionStep = "align"
	StepRender  CompositionStep = "render"
	StepEncode  CompositionStep = "encode"
	StepVerify  CompositionStep = "verify"
	StepPublish CompositionStep = "publish"
)

var (
	ErrEmptyUpload         = errors.New("empty upload")
	ErrUploadTooLarge      = errors.New("upload exceeds size limit")
	ErrUnsupportedMedia    = errors.New("unsupported media type")
	ErrUnknownVoiceStyle   = errors.New("unknown voice style")
	ErrEmptyText           = errors.New("empty text")
	ErrEmptySynthesis      = errors.New("synthesis produced no audio")
	ErrNoVideoStream       = errors.New("no decodable video stream")
	ErrDurationMismatch    = errors.New("speech and video durations differ")
	ErrCaptionUnrenderable = errors.New("caption cannot be rendered")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrDuplicatePath       = errors.New("asset path already registered")
)

// StorageError reports an I/O failure saving or reading an asset
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SynthesisError reports a speech generation failure
type SynthesisError struct {
	Op  string
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis error (%s): %v", e.Op, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// CompositionError reports a decode, render, encode or mux failure tagged by sub-step
type CompositionError struct {
	Step CompositionStep
	Err  error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition error (%s): %v", e.Step, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// FailureReason is the terminal failure of a pipeline run
type FailureReason struct {
	Stage   Stage
	Message string
	Err     error
}

func (f *FailureReason) Error() string {
	return fmt.Sprintf("%s failed: %v", f.Stage, f.Err)
}

func (f *FailureReason) Unwrap() error { return f.Err }
