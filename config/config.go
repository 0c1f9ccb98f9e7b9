package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported speech backends
const (
	BackendTranslate = "translate"
	BackendCloud     = "cloud"
	BackendGemini    = "gemini"
)

// Duration policies for speech that does not match the video length
const (
	PolicyPadTrim = "pad_trim"
	PolicyReject  = "reject"
)

// Config holds all application configuration
type Config struct {
	// Server
	AppEnv          string
	Port            string
	CORSOrigins     []string
	JWTSecret       string
	PipelineTimeout time.Duration
	MaxUploadBytes  int64

	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	RawDir       string
	ProcessedDir string
	TempDir      string
	DatabaseURL  string

	// Folder intake
	InboxDir          string
	OutboxDir         string
	MaxConcurrentJobs int

	// Speech synthesis
	TTSBackend               string
	TTSLanguage              string
	TTSAPIKeys               []string
	VoiceDefaultVariant      string
	VoiceAlternateVariant    string
	TranslateBaseURL         string
	CloudTTSEndpoint         string
	GeminiModel              string
	GeminiBaseURL            string
	AudioChunkSize           int
	MaxConcurrentTTSRequests int
	KeyRetryAfter            time.Duration

	// Encoding
	FFmpegPath           string
	FFprobePath          string
	VideoCodec           string
	AudioCodec           string
	AudioBitrate         string
	AudioSampleRate      int
	Preset               string
	EncodeThreads        int
	MaxConcurrentEncodes int

	// Caption rendering
	CaptionFontFile  string
	CaptionFontColor string
	CaptionFontScale float64
	CaptionMinFont   int

	// Duration policy
	DurationPolicy    string
	DurationTolerance float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig(envFiles ...string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load(envFiles...)

	backend := strings.ToLower(getEnv("TTS_BACKEND", BackendTranslate))
	defVariant, altVariant := defaultVariants(backend)

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		CORSOrigins:     parseList(getEnv("CORS_ORIGINS", "*")),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		PipelineTimeout: getEnvAsDuration("PIPELINE_TIMEOUT", 10*time.Minute),
		MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_MB", 512)) << 20,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		RawDir:       getEnv("UPLOAD_DIR", "./uploads"),
		ProcessedDir: getEnv("PROCESSED_DIR", "./processed"),
		TempDir:      getEnv("TEMP_DIR", "./temp"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		InboxDir:          getEnv("INBOX_DIR", "./inbox"),
		OutboxDir:         getEnv("OUTBOX_DIR", "./outbox"),
		MaxConcurrentJobs: getEnvAsInt("MAX_CONCURRENT_JOBS", 2),

		TTSBackend:               backend,
		TTSLanguage:              getEnv("TTS_LANGUAGE", "en"),
		TTSAPIKeys:               parseList(getEnv("TTS_API_KEYS", "")),
		VoiceDefaultVariant:      getEnv("VOICE_DEFAULT_VARIANT", defVariant),
		VoiceAlternateVariant:    getEnv("VOICE_ALTERNATE_VARIANT", altVariant),
		TranslateBaseURL:         getEnv("TRANSLATE_TTS_BASE_URL", "https://translate.google.%s"),
		CloudTTSEndpoint:         getEnv("CLOUD_TTS_ENDPOINT", "https://texttospeech.googleapis.com/v1/text:synthesize"),
		GeminiModel:              getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		GeminiBaseURL:            getEnv("GEMINI_BASE_URL", ""),
		AudioChunkSize:           getEnvAsInt("AUDIO_CHUNK_SIZE", defaultChunkSize(backend)),
		MaxConcurrentTTSRequests: getEnvAsInt("MAX_CONCURRENT_TTS_REQUESTS", 3),
		KeyRetryAfter:            getEnvAsDuration("TTS_KEY_RETRY_AFTER", 60*time.Second),

		FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:          getEnv("FFPROBE_PATH", "ffprobe"),
		VideoCodec:           getEnv("VIDEO_CODEC", "libx264"),
		AudioCodec:           getEnv("AUDIO_CODEC", "aac"),
		AudioBitrate:         getEnv("AUDIO_BITRATE", "192k"),
		AudioSampleRate:      getEnvAsInt("AUDIO_SAMPLE_RATE", 44100),
		Preset:               getEnv("VIDEO_PRESET", "fast"),
		EncodeThreads:        getEnvAsInt("ENCODE_THREADS", 4),
		MaxConcurrentEncodes: getEnvAsInt("MAX_CONCURRENT_ENCODES", 2),

		CaptionFontFile:  getEnv("CAPTION_FONT_FILE", ""),
		CaptionFontColor: getEnv("CAPTION_FONT_COLOR", "white"),
		CaptionFontScale: getEnvAsFloat("CAPTION_FONT_SCALE", 0.05),
		CaptionMinFont:   getEnvAsInt("CAPTION_MIN_FONT", 12),

		DurationPolicy:    strings.ToLower(getEnv("DURATION_POLICY", PolicyPadTrim)),
		DurationTolerance: getEnvAsFloat("DURATION_TOLERANCE_SECONDS", 0.5),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.TTSBackend {
	case BackendTranslate:
	case BackendCloud:
	case BackendGemini:
		if len(c.TTSAPIKeys) == 0 {
			return errors.New("TTS_API_KEYS is required for the gemini backend")
		}
	default:
		return fmt.Errorf("TTS_BACKEND %q is not supported", c.TTSBackend)
	}
	if c.VoiceDefaultVariant == "" || c.VoiceAlternateVariant == "" {
		return errors.New("both voice variants are required")
	}
	if c.RawDir == "" || c.ProcessedDir == "" {
		return errors.New("UPLOAD_DIR and PROCESSED_DIR are required")
	}
	if c.RawDir == c.ProcessedDir {
		return errors.New("UPLOAD_DIR and PROCESSED_DIR must differ")
	}
	if c.AudioChunkSize <= 0 {
		return errors.New("AUDIO_CHUNK_SIZE must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if c.CaptionFontScale <= 0 || c.CaptionFontScale >= 1 {
		return errors.New("CAPTION_FONT_SCALE must be between 0 and 1")
	}
	if c.DurationPolicy != PolicyPadTrim && c.DurationPolicy != PolicyReject {
		return fmt.Errorf("DURATION_POLICY %q is not supported", c.DurationPolicy)
	}
	if c.DurationTolerance < 0 {
		return errors.New("DURATION_TOLERANCE_SECONDS must not be negative")
	}

	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.MaxConcurrentTTSRequests <= 0 {
		c.MaxConcurrentTTSRequests = 1
	}
	if c.MaxConcurrentEncodes <= 0 {
		c.MaxConcurrentEncodes = 1
	}
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = 2
	}
	if c.EncodeThreads <= 0 {
		c.EncodeThreads = 4
	}
	if c.CaptionMinFont <= 0 {
		c.CaptionMinFont = 12
	}
	return nil
}

// IsDevelopment reports whether the service runs with development defaults
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func defaultVariants(backend string) (string, string) {
	switch backend {
	case BackendCloud:
		return "en-US-Standard-D", "en-AU-Standard-C"
	case BackendGemini:
		return "Puck", "Kore"
	}
	// translate host TLDs: US and Australian accents
	return "com", "com.au"
}

func defaultChunkSize(backend string) int {
	switch backend {
	case BackendCloud, BackendGemini:
		return 4500
	}
	return 100
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %s, Backend: %s, TTS Keys: %d, ChunkSize: %d, Policy: %s, DB: %t}",
		c.Port, c.TTSBackend, len(c.TTSAPIKeys), c.AudioChunkSize, c.DurationPolicy, c.DatabaseURL != "")
}
