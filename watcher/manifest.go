package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"voicecaption/models"
)

const resultSuffix = ".result.yaml"

// Manifest is one caption job dropped into the inbox
type Manifest struct {
	Video     string `yaml:"video"`
	Text      string `yaml:"text"`
	Voice     string `yaml:"voice"`
	RequestID string `yaml:"request_id,omitempty"`
}

// Result is written to the outbox for every manifest
type Result struct {
	Manifest   string    `yaml:"manifest"`
	RequestID  string    `yaml:"request_id,omitempty"`
	State      string    `yaml:"state"`
	VideoID    string    `yaml:"video_id,omitempty"`
	Output     string    `yaml:"output,omitempty"`
	RawVideoID string    `yaml:"raw_video_id,omitempty"`
	VoiceID    string    `yaml:"voice_id,omitempty"`
	Stage      string    `yaml:"stage,omitempty"`
	Error      string    `yaml:"error,omitempty"`
	FinishedAt time.Time `yaml:"finished_at"`
}

// Pipeline runs one caption request
type Pipeline interface {
	Run(ctx context.Context, req models.CaptionRequest) (models.CompositionResult, error)
}

// Processor turns manifests into pipeline runs and result files
type Processor struct {
	pipeline  Pipeline
	outboxDir string
	timeout   time.Duration
	log       zerolog.Logger
}

// NewProcessor creates a manifest processor writing results to outboxDir
func NewProcessor(pipeline Pipeline, outboxDir string, timeout time.Duration, log zerolog.Logger) (*Processor, error) {
	if err := os.MkdirAll(outboxDir, 0755); err != nil {
		return nil, fmt.Errorf("create outbox: %w", err)
	}
	return &Processor{
		pipeline:  pipeline,
		outboxDir: outboxDir,
		timeout:   timeout,
		log:       log.With().Str("component", "intake").Logger(),
	}, nil
}

// LoadManifest reads and validates a manifest. Relative video paths are resolved against
// the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}

	switch {
	case strings.TrimSpace(m.Video) == "":
		return Manifest{}, errors.New("manifest: video is required")
	case strings.TrimSpace(m.Text) == "":
		return Manifest{}, errors.New("manifest: text is required")
	case strings.TrimSpace(m.Voice) == "":
		return Manifest{}, errors.New("manifest: voice is required")
	}
	if !filepath.IsAbs(m.Video) {
		m.Video = filepath.Join(filepath.Dir(path), m.Video)
	}
	return m, nil
}

// Handle processes one manifest. A result file is written whatever the outcome.
func (p *Processor) Handle(ctx context.Context, manifestPath string) error {
	res, runErr := p.run(ctx, manifestPath)
	res.Manifest = filepath.Base(manifestPath)
	res.FinishedAt = time.Now().UTC()

	if err := p.writeResult(manifestPath, res); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (p *Processor) run(ctx context.Context, manifestPath string) (Result, error) {
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return Result{State: string(models.StateErrored), Error: err.Error()}, err
	}

	video, err := os.Open(m.Video)
	if err != nil {
		err = fmt.Errorf("open video: %w", err)
		return Result{State: string(models.StateErrored), Error: err.Error()}, err
	}
	defer video.Close()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	result, err := p.pipeline.Run(ctx, models.CaptionRequest{
		RequestID: m.RequestID,
		Video:     video,
		Text:      m.Text,
		Voice:     models.VoiceStyleFromSelector(m.Voice),
	})
	if err != nil && result.Failure == nil {
		return Result{State: string(models.StateErrored), Error: err.Error()}, err
	}

	res := ResultFrom(result)
	if result.Failure != nil {
		return res, err
	}
	p.log.Info().Str("manifest", manifestPath).Str("request_id", result.RequestID).Msg("manifest done")
	return res, nil
}

// ResultFrom summarizes a pipeline outcome without internal error detail
func ResultFrom(result models.CompositionResult) Result {
	res := Result{RequestID: result.RequestID, State: string(result.State)}
	if result.Raw != nil {
		res.RawVideoID = result.Raw.ID
	}
	if result.Speech != nil {
		res.VoiceID = result.Speech.ID
	}
	if result.Failure != nil {
		res.Stage = string(result.Failure.Stage)
		res.Error = result.Failure.Message
	}
	if result.Asset != nil {
		res.VideoID = result.Asset.ID
		res.Output = result.Asset.Path
	}
	return res
}

// writeResult writes <name>.result.yaml into the outbox through a temp file
func (p *Processor) writeResult(manifestPath string, res Result) error {
	data, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(manifestPath), filepath.Ext(manifestPath))
	final := filepath.Join(p.outboxDir, base+resultSuffix)

	tmp, err := os.CreateTemp(p.outboxDir, ".result-*")
	if err != nil {
		return fmt.Errorf("create result: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close result: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}
