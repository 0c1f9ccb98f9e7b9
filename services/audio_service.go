package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"voicecaption/config"
	"voicecaption/models"
	"voicecaption/repository"
	"voicecaption/storage"
	"voicecaption/utils"
)

// AudioService turns caption text into a synthesized speech asset
type AudioService struct {
	backend       SpeechBackend
	voices        map[models.VoiceStyle]string
	text          *TextProcessor
	ffmpeg        *utils.FFmpeg
	store         *storage.Store
	catalog       repository.AssetCatalog
	tempDir       string
	maxConcurrent int
	sampleRate    int
	audioBitrate  string
	log           zerolog.Logger
}

// AudioServiceOptions groups the tunables of AudioService
type AudioServiceOptions struct {
	DefaultVariant   string
	AlternateVariant string
	ChunkSize        int
	MaxConcurrent    int
	TempDir          string
	SampleRate       int
	AudioBitrate     string
}

// NewAudioService creates a new audio service
func NewAudioService(backend SpeechBackend, ffmpeg *utils.FFmpeg, store *storage.Store, catalog repository.AssetCatalog, opts AudioServiceOptions, log zerolog.Logger) *AudioService {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = "192k"
	}
	return &AudioService{
		backend: backend,
		voices: map[models.VoiceStyle]string{
			models.VoiceDefault:   opts.DefaultVariant,
			models.VoiceAlternate: opts.AlternateVariant,
		},
		text:          NewTextProcessor(opts.ChunkSize),
		ffmpeg:        ffmpeg,
		store:         store,
		catalog:       catalog,
		tempDir:       opts.TempDir,
		maxConcurrent: opts.MaxConcurrent,
		sampleRate:    opts.SampleRate,
		audioBitrate:  opts.AudioBitrate,
		log:           log.With().Str("component", "speech").Str("backend", backend.Name()).Logger(),
	}
}

// Variant returns the engine variant for a voice style
func (as *AudioService) Variant(style models.VoiceStyle) (string, error) {
	variant, ok := as.voices[style]
	if !ok || variant == "" {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownVoiceStyle, style)
	}
	return variant, nil
}

// Synthesize generates speech for text and stores it as a SynthesizedAudio asset
func (as *AudioService) Synthesize(ctx context.Context, text string, style models.VoiceStyle) (models.MediaAsset, error) {
	variant, err := as.Variant(style)
	if err != nil {
		return models.MediaAsset{}, &models.SynthesisError{Op: "voice", Err: err}
	}

	chunks := as.text.SplitForAudio(text)
	if len(chunks) == 0 {
		return models.MediaAsset{}, &models.SynthesisError{Op: "text", Err: models.ErrEmptyText}
	}

	log := as.log.With().Str("request_id", storage.RequestIDFromContext(ctx)).Logger()
	log.Debug().Int("chunks", len(chunks)).Str("variant", variant).Msg("synthesizing speech")

	clips, err := as.generateClips(ctx, chunks, variant)
	if err != nil {
		return models.MediaAsset{}, &models.SynthesisError{Op: "synthesize", Err: err}
	}

	obj, err := as.publish(ctx, clips)
	if err != nil {
		return models.MediaAsset{}, err
	}

	asset := models.MediaAsset{
		ID:        obj.ID,
		RequestID: storage.RequestIDFromContext(ctx),
		Path:      obj.Path,
		Kind:      models.AssetSynthesizedAudio,
		Size:      obj.Size,
		CreatedAt: time.Now().UTC(),
	}
	if err := as.catalog.Save(ctx, asset); err != nil {
		_ = as.store.Delete(obj.Path)
		return models.MediaAsset{}, &models.SynthesisError{Op: "register", Err: err}
	}

	log.Info().Str("asset_id", asset.ID).Int64("size", asset.Size).Msg("speech synthesized")
	return asset, nil
}

// generateClips synthesizes every chunk, at most maxConcurrent at a time. Order is preserved.
func (as *AudioService) generateClips(ctx context.Context, chunks []string, variant string) ([]AudioClip, error) {
	clips := make([]AudioClip, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(as.maxConcurrent)
	for i, chunk := range chunks {
		g.Go(func() error {
			clip, err := as.backend.Synthesize(gctx, chunk, variant)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if len(clip.Data) == 0 {
				return fmt.Errorf("chunk %d: %w", i, models.ErrEmptySynthesis)
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

// publish writes the clips as one mp3 into the processed area
func (as *AudioService) publish(ctx context.Context, clips []AudioClip) (storage.Object, error) {
	if len(clips) == 1 && clips[0].Format.Container == ContainerMP3 {
		obj, err := as.store.WriteStream(ctx, storage.AreaProcessed, "voice", ".mp3", bytes.NewReader(clips[0].Data), 0)
		if err != nil {
			return storage.Object{}, &models.SynthesisError{Op: "store", Err: err}
		}
		return obj, nil
	}

	jobDir, err := utils.CreateJobDir(as.tempDir, "tts")
	if err != nil {
		return storage.Object{}, &models.SynthesisError{Op: "store", Err: err}
	}
	defer utils.CleanupJobDir(jobDir)

	inputs := make([]utils.AudioInput, 0, len(clips))
	for i, clip := range clips {
		path := filepath.Join(jobDir, fmt.Sprintf("chunk_%03d%s", i, clip.Format.Ext()))
		if err := os.WriteFile(path, clip.Data, 0644); err != nil {
			return storage.Object{}, &models.SynthesisError{Op: "store", Err: err}
		}
		inputs = append(inputs, utils.AudioInput{Path: path, InputArgs: clip.Format.InputArgs()})
	}

	merged := filepath.Join(jobDir, "voice.mp3")
	if err := as.ffmpeg.ConcatAudio(ctx, inputs, merged, as.sampleRate, as.audioBitrate); err != nil {
		return storage.Object{}, &models.SynthesisError{Op: "merge", Err: err}
	}
	if size, err := utils.GetFileSize(merged); err != nil || size == 0 {
		if err == nil {
			err = models.ErrEmptySynthesis
		}
		return storage.Object{}, &models.SynthesisError{Op: "merge", Err: err}
	}

	obj, err := as.store.Publish(ctx, storage.AreaProcessed, "voice", ".mp3", merged)
	if err != nil {
		return storage.Object{}, &models.SynthesisError{Op: "store", Err: err}
	}
	return obj, nil
}

// NewSpeechBackend builds the backend named by kind
func NewSpeechBackend(ctx context.Context, kind string, opts SpeechBackendOptions) (SpeechBackend, error) {
	pool := utils.NewAPIKeyPool(opts.APIKeys)
	switch kind {
	case config.BackendTranslate:
		return NewTranslateBackend(nil, opts.TranslateBaseURL, opts.Language), nil
	case config.BackendCloud:
		return NewCloudTTSBackend(ctx, opts.CloudEndpoint, pool, opts.KeyRetryAfter)
	case config.BackendGemini:
		return NewGeminiTTSBackend(opts.GeminiModel, opts.GeminiBaseURL, pool, opts.KeyRetryAfter)
	}
	return nil, errors.New("unknown speech backend " + kind)
}

// SpeechBackendOptions configures NewSpeechBackend
type SpeechBackendOptions struct {
	Language         string
	APIKeys          []string
	TranslateBaseURL string
	CloudEndpoint    string
	GeminiModel      string
	GeminiBaseURL    string
	KeyRetryAfter    time.Duration
}
