package services

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"voicecaption/config"
	"voicecaption/models"
	"voicecaption/repository"
	"voicecaption/storage"
	"voicecaption/utils"
)

// Names inside the job directory. ffmpeg runs there so the filter graph only holds relative names.
const (
	captionFileName  = "caption.txt"
	fontLinkName     = "caption-font"
	composedFileName = "composed.mp4"
)

var safeColor = regexp.MustCompile(`^[A-Za-z0-9#@.]+$`)

// ComposerOptions configures encoding and caption rendering
type ComposerOptions struct {
	TempDir      string
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
	SampleRate   int
	Preset       string
	Threads      int

	FontFile  string
	FontColor string
	FontScale float64
	MinFont   int

	DurationPolicy string
	Tolerance      float64
}

// ComposerService burns the caption into the raw video and replaces its audio with the speech asset
type ComposerService struct {
	ffmpeg  *utils.FFmpeg
	store   *storage.Store
	catalog repository.AssetCatalog
	encodes *utils.Semaphore
	opts    ComposerOptions
	log     zerolog.Logger
}

// NewComposerService creates a new composer service. encodes bounds concurrent ffmpeg encodes
// across all requests.
func NewComposerService(ffmpeg *utils.FFmpeg, store *storage.Store, catalog repository.AssetCatalog, encodes *utils.Semaphore, opts ComposerOptions, log zerolog.Logger) *ComposerService {
	if opts.VideoCodec == "" {
		opts.VideoCodec = "libx264"
	}
	if opts.AudioCodec == "" {
		opts.AudioCodec = "aac"
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = "192k"
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.Preset == "" {
		opts.Preset = "fast"
	}
	if opts.Threads <= 0 {
		opts.Threads = 4
	}
	if !safeColor.MatchString(opts.FontColor) {
		opts.FontColor = "white"
	}
	if opts.FontScale <= 0 || opts.FontScale >= 1 {
		opts.FontScale = 0.05
	}
	if opts.DurationPolicy == "" {
		opts.DurationPolicy = config.PolicyPadTrim
	}
	if encodes == nil {
		encodes = utils.NewSemaphore(1)
	}
	return &ComposerService{
		ffmpeg:  ffmpeg,
		store:   store,
		catalog: catalog,
		encodes: encodes,
		opts:    opts,
		log:     log.With().Str("component", "composer").Logger(),
	}
}

// sourceInfo is what the probe step learns about the inputs
type sourceInfo struct {
	Width, Height  int
	VideoDuration  float64
	SpeechDuration float64
}

// Compose produces a ComposedVideo asset from the raw video, caption text and speech.
// The original audio of rawVideo never reaches the output.
func (cs *ComposerService) Compose(ctx context.Context, rawVideo models.MediaAsset, text string, speech models.MediaAsset) (models.MediaAsset, error) {
	log := cs.log.With().
		Str("request_id", storage.RequestIDFromContext(ctx)).
		Int("caption_runes", utf8.RuneCountInString(text)).
		Logger()

	var layout CaptionLayout
	fail := func(step models.CompositionStep, err error) (models.MediaAsset, error) {
		log.Warn().Err(err).
			Str("step", string(step)).
			Int("caption_lines", len(layout.Lines)).
			Int("font_size", layout.FontSize).
			Msg("composition failed")
		return models.MediaAsset{}, &models.CompositionError{Step: step, Err: err}
	}

	info, err := cs.probe(ctx, rawVideo, speech)
	if err != nil {
		return fail(models.StepProbe, err)
	}

	if err := cs.align(info); err != nil {
		return fail(models.StepAlign, err)
	}

	layout, err = LayoutCaption(text, info.Width, info.Height, cs.opts.FontScale, cs.opts.MinFont)
	if err != nil {
		return fail(models.StepRender, err)
	}

	jobDir, err := utils.CreateJobDir(cs.opts.TempDir, "compose")
	if err != nil {
		return fail(models.StepRender, err)
	}
	defer utils.CleanupJobDir(jobDir)

	fontName, err := cs.prepareCaption(jobDir, layout)
	if err != nil {
		return fail(models.StepRender, err)
	}

	args, err := cs.encodeArgs(rawVideo.Path, speech.Path, info, layout, fontName)
	if err != nil {
		return fail(models.StepEncode, err)
	}

	start := time.Now()
	if err := cs.encode(ctx, jobDir, args); err != nil {
		return fail(models.StepEncode, err)
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("encode finished")

	outPath := filepath.Join(jobDir, composedFileName)
	if err := cs.verify(ctx, outPath, info); err != nil {
		return fail(models.StepVerify, err)
	}

	asset, err := cs.publish(ctx, outPath)
	if err != nil {
		return fail(models.StepPublish, err)
	}

	log.Info().
		Str("asset_id", asset.ID).
		Float64("duration", info.VideoDuration).
		Float64("speech_duration", info.SpeechDuration).
		Msg("video composed")
	return asset, nil
}

// probe reads duration and frame size of the raw video and the speech duration
func (cs *ComposerService) probe(ctx context.Context, rawVideo, speech models.MediaAsset) (sourceInfo, error) {
	size, err := utils.GetFileSize(rawVideo.Path)
	if err != nil {
		return sourceInfo{}, fmt.Errorf("raw video: %w", err)
	}
	if size == 0 {
		return sourceInfo{}, fmt.Errorf("raw video: %w", models.ErrEmptyUpload)
	}

	result, err := cs.ffmpeg.Probe(ctx, rawVideo.Path)
	if err != nil {
		return sourceInfo{}, fmt.Errorf("raw video: %w", err)
	}
	stream, ok := result.VideoStream()
	if !ok || stream.Width <= 0 || stream.Height <= 0 {
		return sourceInfo{}, models.ErrNoVideoStream
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return sourceInfo{}, fmt.Errorf("%w: no duration", models.ErrNoVideoStream)
	}

	speechDuration, err := cs.ffmpeg.GetDuration(ctx, speech.Path)
	if err != nil {
		return sourceInfo{}, fmt.Errorf("speech: %w", err)
	}

	return sourceInfo{
		Width:          stream.Width,
		Height:         stream.Height,
		VideoDuration:  duration,
		SpeechDuration: speechDuration,
	}, nil
}

// align applies the duration policy. pad_trim always succeeds; the encode pads the speech with
// silence and cuts at the video duration.
func (cs *ComposerService) align(info sourceInfo) error {
	if cs.opts.DurationPolicy != config.PolicyReject {
		return nil
	}
	if diff := math.Abs(info.SpeechDuration - info.VideoDuration); diff > cs.opts.Tolerance {
		return fmt.Errorf("%w: speech %.3fs, video %.3fs", models.ErrDurationMismatch, info.SpeechDuration, info.VideoDuration)
	}
	return nil
}

// prepareCaption writes the caption text and links the font into the job dir.
// Returns the relative font name, empty when the ffmpeg default font is used.
func (cs *ComposerService) prepareCaption(jobDir string, layout CaptionLayout) (string, error) {
	if err := os.WriteFile(filepath.Join(jobDir, captionFileName), []byte(layout.Text()), 0644); err != nil {
		return "", fmt.Errorf("write caption: %w", err)
	}
	if cs.opts.FontFile == "" {
		return "", nil
	}

	src, err := filepath.Abs(cs.opts.FontFile)
	if err != nil {
		return "", fmt.Errorf("font path: %w", err)
	}
	name := fontLinkName + strings.ToLower(filepath.Ext(src))
	dst := filepath.Join(jobDir, name)
	if err := os.Symlink(src, dst); err != nil {
		if err := copyFile(src, dst); err != nil {
			return "", fmt.Errorf("font: %w", err)
		}
	}
	return name, nil
}

// encodeArgs builds the single ffmpeg pass. Only [v] (raw video with caption) and [a]
// (speech) are mapped.
func (cs *ComposerService) encodeArgs(videoPath, speechPath string, info sourceInfo, layout CaptionLayout, fontName string) ([]string, error) {
	videoAbs, err := filepath.Abs(videoPath)
	if err != nil {
		return nil, err
	}
	speechAbs, err := filepath.Abs(speechPath)
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf("[0:v]%s[v];[1:a]apad[a]", cs.drawtextFilter(layout, fontName, CaptionCues("", info.VideoDuration)[0]))

	return []string{
		"-i", videoAbs,
		"-i", speechAbs,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", cs.opts.VideoCodec,
		"-preset", cs.opts.Preset,
		"-threads", strconv.Itoa(cs.opts.Threads),
		"-pix_fmt", "yuv420p",
		"-c:a", cs.opts.AudioCodec,
		"-b:a", cs.opts.AudioBitrate,
		"-ar", strconv.Itoa(cs.opts.SampleRate),
		"-t", utils.FormatTimestamp(info.VideoDuration),
		"-movflags", "+faststart",
		"-y", composedFileName,
	}, nil
}

func (cs *ComposerService) drawtextFilter(layout CaptionLayout, fontName string, cue models.Cue) string {
	// expansion=none: % and \ in the caption are drawn as typed
	opts := []string{"textfile=" + captionFileName, "expansion=none"}
	if fontName != "" {
		opts = append(opts, "fontfile="+fontName)
	}
	opts = append(opts,
		"fontsize="+strconv.Itoa(layout.FontSize),
		"fontcolor="+cs.opts.FontColor,
		"line_spacing="+strconv.Itoa(layout.LineSpacing),
		"x=(w-text_w)/2",
		fmt.Sprintf("y=h-text_h-%d", layout.Margin+layout.BoxBorder),
		"box=1",
		"boxcolor=black@0.5",
		"boxborderw="+strconv.Itoa(layout.BoxBorder),
		fmt.Sprintf("enable='between(t,%s,%s)'", formatSeconds(cue.Start), formatSeconds(cue.End)),
	)
	return "drawtext=" + strings.Join(opts, ":")
}

func (cs *ComposerService) encode(ctx context.Context, jobDir string, args []string) error {
	if err := cs.encodes.Acquire(ctx); err != nil {
		return err
	}
	defer cs.encodes.Release()
	return cs.ffmpeg.Run(ctx, jobDir, args)
}

// verify checks the output has one video and one audio stream and keeps the video duration
func (cs *ComposerService) verify(ctx context.Context, outPath string, info sourceInfo) error {
	size, err := utils.GetFileSize(outPath)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if size == 0 {
		return fmt.Errorf("output is empty")
	}

	result, err := cs.ffmpeg.Probe(ctx, outPath)
	if err != nil {
		return err
	}
	if v, a := result.StreamCount("video"), result.StreamCount("audio"); v != 1 || a != 1 {
		return fmt.Errorf("output has %d video and %d audio streams", v, a)
	}
	// Container duration can overshoot by about a frame
	tolerance := math.Max(cs.opts.Tolerance, 0.1)
	if diff := math.Abs(result.DurationSeconds() - info.VideoDuration); diff > tolerance {
		return fmt.Errorf("%w: output %.3fs, video %.3fs", models.ErrDurationMismatch, result.DurationSeconds(), info.VideoDuration)
	}
	return nil
}

func (cs *ComposerService) publish(ctx context.Context, outPath string) (models.MediaAsset, error) {
	obj, err := cs.store.Publish(ctx, storage.AreaProcessed, "output_video", ".mp4", outPath)
	if err != nil {
		return models.MediaAsset{}, err
	}
	asset := models.MediaAsset{
		ID:        obj.ID,
		RequestID: storage.RequestIDFromContext(ctx),
		Path:      obj.Path,
		Kind:      models.AssetComposedVideo,
		Size:      obj.Size,
		CreatedAt: time.Now().UTC(),
	}
	if err := cs.catalog.Save(ctx, asset); err != nil {
		_ = cs.store.Delete(obj.Path)
		return models.MediaAsset{}, err
	}
	return asset, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
