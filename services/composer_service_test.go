package services

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecaption/config"
	"voicecaption/models"
	"voicecaption/storage"
	"voicecaption/utils"
)

type composeFixture struct {
	env      *testEnv
	composer *ComposerService
	raw      models.MediaAsset
	speech   models.MediaAsset
}

func newComposeFixture(t *testing.T, opts ComposerOptions) *composeFixture {
	t.Helper()
	env := newTestEnv(t)
	ctx := requestCtx("req")

	rawObj, err := env.store.WriteStream(ctx, storage.AreaRaw, "uploaded_video", ".mp4", bytes.NewReader(fakeVideo("frames")), 0)
	require.NoError(t, err)
	speechObj, err := env.store.WriteStream(ctx, storage.AreaProcessed, "voice", ".mp3", strings.NewReader("ID3-speech"), 0)
	require.NoError(t, err)

	opts.TempDir = env.tempDir
	if opts.Tolerance == 0 {
		opts.Tolerance = 0.5
	}
	return &composeFixture{
		env:      env,
		composer: NewComposerService(env.ffmpeg, env.store, env.catalog, utils.NewSemaphore(1), opts, nopLogger()),
		raw:      models.MediaAsset{ID: rawObj.ID, Path: rawObj.Path, Kind: models.AssetRawVideo, Size: rawObj.Size},
		speech:   models.MediaAsset{ID: speechObj.ID, Path: speechObj.Path, Kind: models.AssetSynthesizedAudio, Size: speechObj.Size},
	}
}

func (f *composeFixture) processedOutputs(t *testing.T) []string {
	var outputs []string
	for _, name := range f.env.dirEntries(t, storage.AreaProcessed) {
		if strings.HasPrefix(name, "output_video") {
			outputs = append(outputs, name)
		}
	}
	return outputs
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestComposeHelloWorld(t *testing.T) {
	f := newComposeFixture(t, ComposerOptions{})

	asset, err := f.composer.Compose(requestCtx("req"), f.raw, "Hello world", f.speech)
	require.NoError(t, err)

	assert.Equal(t, models.AssetComposedVideo, asset.Kind)
	assert.Equal(t, "req", asset.RequestID)
	assert.True(t, f.env.store.Exists(asset.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(asset.Path), "output_video_"))

	saved, err := f.env.catalog.Get(requestCtx("req"), asset.ID)
	require.NoError(t, err)
	assert.Equal(t, asset.Path, saved.Path)

	args := f.env.media.lastFFmpeg()
	filter := argValue(args, "-filter_complex")
	assert.Contains(t, filter, "[0:v]drawtext=textfile=caption.txt")
	assert.Contains(t, filter, "x=(w-text_w)/2")
	assert.Contains(t, filter, "enable='between(t,0.000,10.000)'")
	assert.Equal(t, "00:00:10.000", argValue(args, "-t"), "output is cut at the video duration")
	assert.Equal(t, []string{"Hello world"}, f.env.media.captions)

	assert.Empty(t, f.env.tempEntries(t), "job directory is removed")
	assert.True(t, f.env.store.Exists(f.raw.Path), "inputs are borrowed, not consumed")
	assert.True(t, f.env.store.Exists(f.speech.Path))
}

func TestComposeReplacesOriginalAudio(t *testing.T) {
	f := newComposeFixture(t, ComposerOptions{})

	_, err := f.composer.Compose(requestCtx("req"), f.raw, "Hello world", f.speech)
	require.NoError(t, err)

	args := f.env.media.lastFFmpeg()
	var maps []string
	for i, arg := range args {
		if arg == "-map" {
			maps = append(maps, args[i+1])
		}
		assert.NotContains(t, arg, "0:a", "original audio must never be selected")
	}
	assert.Equal(t, []string{"[v]", "[a]"}, maps)
	assert.Contains(t, argValue(args, "-filter_complex"), "[1:a]apad[a]")

	inputs := []string{}
	for i, arg := range args {
		if arg == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	require.Len(t, inputs, 2)
	assert.Equal(t, filepath.Base(f.raw.Path), filepath.Base(inputs[0]))
	assert.Equal(t, filepath.Base(f.speech.Path), filepath.Base(inputs[1]))
}

func TestComposeDurationPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    string
		speech    float64
		wantStep  models.CompositionStep
		wantError bool
	}{
		{name: "pad_trim shorter speech", policy: config.PolicyPadTrim, speech: 2.4},
		{name: "pad_trim longer speech", policy: config.PolicyPadTrim, speech: 14},
		{name: "reject within tolerance", policy: config.PolicyReject, speech: 9.7},
		{name: "reject mismatch", policy: config.PolicyReject, speech: 2.4, wantStep: models.StepAlign, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newComposeFixture(t, ComposerOptions{DurationPolicy: tt.policy})
			f.env.media.probes["voice"] = audioProbe(tt.speech)

			_, err := f.composer.Compose(requestCtx("req"), f.raw, "Hello world", f.speech)
			if !tt.wantError {
				require.NoError(t, err)
				return
			}
			var compErr *models.CompositionError
			require.ErrorAs(t, err, &compErr)
			assert.Equal(t, tt.wantStep, compErr.Step)
			assert.ErrorIs(t, err, models.ErrDurationMismatch)
			assert.Zero(t, f.env.media.ffmpegCount())
		})
	}
}

func TestComposeFailuresAreTaggedAndLeaveNoOutput(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *composeFixture)
		text     string
		wantStep models.CompositionStep
		wantErr  error
	}{
		{
			name:     "undecodable video",
			setup:    func(f *composeFixture) { delete(f.env.media.probes, "uploaded_video") },
			wantStep: models.StepProbe,
		},
		{
			name:     "no video stream",
			setup:    func(f *composeFixture) { f.env.media.probes["uploaded_video"] = audioProbe(10) },
			wantStep: models.StepProbe,
			wantErr:  models.ErrNoVideoStream,
		},
		{
			name: "zero byte video",
			setup: func(f *composeFixture) {
				require.NoError(t, os.Truncate(f.raw.Path, 0))
			},
			wantStep: models.StepProbe,
			wantErr:  models.ErrEmptyUpload,
		},
		{
			name:     "unrenderable caption",
			text:     "bad\x00caption",
			wantStep: models.StepRender,
			wantErr:  models.ErrCaptionUnrenderable,
		},
		{
			name:     "encoder failure",
			setup:    func(f *composeFixture) { f.env.media.ffmpegErr = errors.New("encoder crashed") },
			wantStep: models.StepEncode,
		},
		{
			name:     "output loses duration",
			setup:    func(f *composeFixture) { f.env.media.probes["composed"] = outputProbe(6, 1, 1) },
			wantStep: models.StepVerify,
			wantErr:  models.ErrDurationMismatch,
		},
		{
			name:     "output has two audio streams",
			setup:    func(f *composeFixture) { f.env.media.probes["composed"] = outputProbe(10, 1, 2) },
			wantStep: models.StepVerify,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newComposeFixture(t, ComposerOptions{})
			if tt.setup != nil {
				tt.setup(f)
			}
			text := tt.text
			if text == "" {
				text = "Hello world"
			}

			_, err := f.composer.Compose(requestCtx("req"), f.raw, text, f.speech)

			var compErr *models.CompositionError
			require.ErrorAs(t, err, &compErr)
			assert.Equal(t, tt.wantStep, compErr.Step)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, f.processedOutputs(t))
			assert.Empty(t, f.env.tempEntries(t))
		})
	}
}

func TestComposeUsesFontFile(t *testing.T) {
	font := filepath.Join(t.TempDir(), "Caption Font.TTF")
	require.NoError(t, os.WriteFile(font, []byte("font"), 0644))

	f := newComposeFixture(t, ComposerOptions{FontFile: font, FontColor: "yellow"})
	_, err := f.composer.Compose(requestCtx("req"), f.raw, "Hello world", f.speech)
	require.NoError(t, err)

	filter := argValue(f.env.media.lastFFmpeg(), "-filter_complex")
	assert.Contains(t, filter, "fontfile=caption-font.ttf")
	assert.Contains(t, filter, "fontcolor=yellow")
	assert.NotContains(t, filter, "Caption Font")
}

func TestNewComposerServiceRejectsUnsafeColor(t *testing.T) {
	env := newTestEnv(t)
	cs := NewComposerService(env.ffmpeg, env.store, env.catalog, nil, ComposerOptions{FontColor: "white:enable=0"}, nopLogger())
	assert.Equal(t, "white", cs.opts.FontColor)
	assert.Equal(t, config.PolicyPadTrim, cs.opts.DurationPolicy)
}

func TestComposeDrawsCaptionLiterally(t *testing.T) {
	f := newComposeFixture(t, ComposerOptions{})
	text := `50% off C:\path %{pts}`

	_, err := f.composer.Compose(requestCtx("req"), f.raw, text, f.speech)
	require.NoError(t, err)

	filter := argValue(f.env.media.lastFFmpeg(), "-filter_complex")
	assert.Contains(t, filter, "drawtext=textfile=caption.txt:expansion=none:")
	assert.NotContains(t, filter, "%")
	require.Len(t, f.env.media.captions, 1)
	assert.Equal(t, text, f.env.media.captions[0])
}

func TestComposeFailureLogsStepAndCaption(t *testing.T) {
	f := newComposeFixture(t, ComposerOptions{})
	f.env.media.ffmpegErr = errors.New("command 'ffmpeg' failed: exit status 1")

	var buf bytes.Buffer
	composer := NewComposerService(f.env.ffmpeg, f.env.store, f.env.catalog, utils.NewSemaphore(1),
		ComposerOptions{TempDir: f.env.tempDir, Tolerance: 0.5}, zerolog.New(&buf))

	_, err := composer.Compose(requestCtx("req"), f.raw, "Hello world", f.speech)
	var compErr *models.CompositionError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, models.StepEncode, compErr.Step)

	logged := buf.String()
	assert.Contains(t, logged, `"step":"encode"`)
	assert.Contains(t, logged, `"caption_runes":11`)
	assert.Contains(t, logged, `"caption_lines":1`)
	assert.Contains(t, logged, `"message":"composition failed"`)
}
