package cli

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"voicecaption/config"
	"voicecaption/handlers"
	"voicecaption/repository"
	"voicecaption/services"
	"voicecaption/storage"
	"voicecaption/utils"
)

// App holds the wired services shared by every command
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    *storage.Store
	Catalog  repository.AssetCatalog
	Pipeline *services.PipelineService
	Handler  *handlers.VideoHandler
}

// NewApp wires storage, catalog, speech backend and the three pipeline stages from cfg
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, exec utils.Executor) (*App, error) {
	store, err := storage.NewStore(cfg.RawDir, cfg.ProcessedDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	var catalog repository.AssetCatalog
	if cfg.DatabaseURL != "" {
		gormCatalog, err := repository.OpenGormCatalog(cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		catalog = gormCatalog
		log.Info().Msg("using postgres asset catalog")
	} else {
		catalog = repository.NewMemoryCatalog()
		log.Warn().Msg("DATABASE_URL not set, asset catalog is in memory")
	}

	backend, err := services.NewSpeechBackend(ctx, cfg.TTSBackend, services.SpeechBackendOptions{
		Language:         cfg.TTSLanguage,
		APIKeys:          cfg.TTSAPIKeys,
		TranslateBaseURL: cfg.TranslateBaseURL,
		CloudEndpoint:    cfg.CloudTTSEndpoint,
		GeminiModel:      cfg.GeminiModel,
		GeminiBaseURL:    cfg.GeminiBaseURL,
		KeyRetryAfter:    cfg.KeyRetryAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("speech backend: %w", err)
	}

	ffmpeg := utils.NewFFmpeg(exec, cfg.FFmpegPath, cfg.FFprobePath)

	ingest := services.NewIngestService(store, catalog, cfg.MaxUploadBytes, log)
	audio := services.NewAudioService(backend, ffmpeg, store, catalog, services.AudioServiceOptions{
		DefaultVariant:   cfg.VoiceDefaultVariant,
		AlternateVariant: cfg.VoiceAlternateVariant,
		ChunkSize:        cfg.AudioChunkSize,
		MaxConcurrent:    cfg.MaxConcurrentTTSRequests,
		TempDir:          cfg.TempDir,
		SampleRate:       cfg.AudioSampleRate,
		AudioBitrate:     cfg.AudioBitrate,
	}, log)
	composer := services.NewComposerService(ffmpeg, store, catalog, utils.NewSemaphore(cfg.MaxConcurrentEncodes), services.ComposerOptions{
		TempDir:        cfg.TempDir,
		VideoCodec:     cfg.VideoCodec,
		AudioCodec:     cfg.AudioCodec,
		AudioBitrate:   cfg.AudioBitrate,
		SampleRate:     cfg.AudioSampleRate,
		Preset:         cfg.Preset,
		Threads:        cfg.EncodeThreads,
		FontFile:       cfg.CaptionFontFile,
		FontColor:      cfg.CaptionFontColor,
		FontScale:      cfg.CaptionFontScale,
		MinFont:        cfg.CaptionMinFont,
		DurationPolicy: cfg.DurationPolicy,
		Tolerance:      cfg.DurationTolerance,
	}, log)
	pipeline := services.NewPipelineService(ingest, audio, composer, log)

	return &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Catalog:  catalog,
		Pipeline: pipeline,
		Handler:  handlers.NewVideoHandler(pipeline, catalog, store, cfg.PipelineTimeout, cfg.MaxUploadBytes, log),
	}, nil
}

// Router builds the HTTP router
func (a *App) Router() *gin.Engine {
	if !a.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	return handlers.NewRouter(a.Handler, handlers.RouterOptions{
		CORSOrigins: a.Config.CORSOrigins,
		JWTSecret:   a.Config.JWTSecret,
		Log:         a.Log,
	})
}
