package services

import (
	"context"
	"errors"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicecaption/models"
	"voicecaption/storage"
)

// VideoIngester persists uploaded video bytes
type VideoIngester interface {
	Store(ctx context.Context, video io.Reader) (models.MediaAsset, error)
}

// SpeechSynthesizer turns text into a speech asset
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, style models.VoiceStyle) (models.MediaAsset, error)
}

// Composer combines raw video, caption text and speech into the final asset
type Composer interface {
	Compose(ctx context.Context, rawVideo models.MediaAsset, text string, speech models.MediaAsset) (models.MediaAsset, error)
}

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// PipelineService runs VideoIngest, SpeechSynthesis and Composition in sequence for one request
type PipelineService struct {
	ingest     VideoIngester
	synthesize SpeechSynthesizer
	compose    Composer
	log        zerolog.Logger
	now        func() time.Time
}

// NewPipelineService creates a new pipeline
func NewPipelineService(ingest VideoIngester, synthesize SpeechSynthesizer, compose Composer, log zerolog.Logger) *PipelineService {
	return &PipelineService{
		ingest:     ingest,
		synthesize: synthesize,
		compose:    compose,
		log:        log.With().Str("component", "pipeline").Logger(),
		now:        time.Now,
	}
}

// NormalizeRequestID returns id if it is safe to embed in asset names, otherwise a new UUID.
// Asset names also carry a per-run suffix, so a reused ID never maps to existing files.
func NormalizeRequestID(id string) string {
	if requestIDPattern.MatchString(id) {
		return id
	}
	return uuid.NewString()
}

// Run processes one request synchronously. Invalid requests return ErrInvalidRequest before any
// stage runs. Otherwise the result is Done with an asset or Errored with the failing stage; the
// returned error is the result's FailureReason in that case. Intermediate assets are never removed.
func (p *PipelineService) Run(ctx context.Context, req models.CaptionRequest) (models.CompositionResult, error) {
	if err := req.Validate(); err != nil {
		return models.CompositionResult{}, err
	}

	req.RequestID = NormalizeRequestID(req.RequestID)
	ctx = storage.WithIDSource(ctx, storage.NewRunIDs(req.RequestID))
	log := p.log.With().Str("request_id", req.RequestID).Logger()

	result := models.CompositionResult{
		RequestID: req.RequestID,
		State:     models.StateStart,
		StartedAt: p.now().UTC(),
	}

	fail := func(stage models.Stage, err error) (models.CompositionResult, error) {
		result.State = models.StateErrored
		result.Failure = &models.FailureReason{Stage: stage, Message: stage.PublicMessage(), Err: err}
		result.FinishedAt = p.now().UTC()

		event := log.Error().Err(err).Str("stage", string(stage))
		var compErr *models.CompositionError
		if errors.As(err, &compErr) {
			event = event.Str("step", string(compErr.Step))
		}
		event.Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).Msg("pipeline failed")
		return result, result.Failure
	}

	// Start -> Ingested
	raw, err := p.ingest.Store(ctx, req.Video)
	if err != nil {
		return fail(models.StageVideoIngest, err)
	}
	result.Raw = &raw
	result.State = models.StateIngested
	log.Debug().Str("asset_id", raw.ID).Msg("video ingested")

	// Ingested -> Synthesized
	speech, err := p.synthesize.Synthesize(ctx, req.Text, req.Voice)
	if err != nil {
		return fail(models.StageSpeechSynthesis, err)
	}
	result.Speech = &speech
	result.State = models.StateSynthesized
	log.Debug().Str("asset_id", speech.ID).Msg("speech synthesized")

	// Synthesized -> Composed
	composed, err := p.compose.Compose(ctx, raw, req.Text, speech)
	if err != nil {
		return fail(models.StageComposition, err)
	}
	result.State = models.StateComposed

	// Composed -> Done
	result.Asset = &composed
	result.State = models.StateDone
	result.FinishedAt = p.now().UTC()
	log.Info().
		Str("asset_id", composed.ID).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("pipeline done")
	return result, nil
}
