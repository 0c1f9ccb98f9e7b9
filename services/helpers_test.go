package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voicecaption/repository"
	"voicecaption/storage"
	"voicecaption/utils"
)

// mp4Header is the start of an ISO base media file, enough for content sniffing
var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

func fakeVideo(payload string) []byte {
	return append(append([]byte{}, mp4Header...), payload...)
}

// fakeMedia stands in for ffmpeg and ffprobe. Probe output is chosen by the probed file's
// name prefix; ffmpeg writes a small file at its output argument.
type fakeMedia struct {
	mu          sync.Mutex
	probes      map[string]string
	ffmpegCalls [][]string
	ffmpegErr   error
	captions    []string
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{probes: map[string]string{
		"uploaded_video": videoProbe(1280, 720, 10.0, true),
		"voice":          audioProbe(2.4),
		"composed":       outputProbe(10.0, 1, 1),
	}}
}

func (f *fakeMedia) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return f.ExecuteInDir(ctx, "", name, args...)
}

func (f *fakeMedia) ExecuteInDir(ctx context.Context, dir string, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch name {
	case "ffprobe":
		base := filepath.Base(args[len(args)-1])
		for prefix, out := range f.probes {
			if strings.HasPrefix(base, prefix) {
				return out, nil
			}
		}
		return "", errors.New("command 'ffprobe' failed: Invalid data found when processing input")
	case "ffmpeg":
		f.ffmpegCalls = append(f.ffmpegCalls, append([]string{}, args...))
		if caption, err := os.ReadFile(filepath.Join(dir, captionFileName)); err == nil && dir != "" {
			f.captions = append(f.captions, string(caption))
		}
		if f.ffmpegErr != nil {
			return "", f.ffmpegErr
		}
		out := args[len(args)-1]
		if !filepath.IsAbs(out) {
			out = filepath.Join(dir, out)
		}
		return "", os.WriteFile(out, []byte("encoded-media"), 0644)
	}
	return "", fmt.Errorf("unexpected command %s", name)
}

func (f *fakeMedia) lastFFmpeg() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ffmpegCalls) == 0 {
		return nil
	}
	return f.ffmpegCalls[len(f.ffmpegCalls)-1]
}

func (f *fakeMedia) ffmpegCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ffmpegCalls)
}

func videoProbe(width, height int, duration float64, withAudio bool) string {
	streams := fmt.Sprintf(`{"index": 0, "codec_type": "video", "codec_name": "h264", "width": %d, "height": %d, "duration": "%.6f"}`, width, height, duration)
	if withAudio {
		streams += fmt.Sprintf(`, {"index": 1, "codec_type": "audio", "codec_name": "aac", "duration": "%.6f"}`, duration)
	}
	return fmt.Sprintf(`{"streams": [%s], "format": {"duration": "%.6f"}}`, streams, duration)
}

func audioProbe(duration float64) string {
	return fmt.Sprintf(`{"streams": [{"index": 0, "codec_type": "audio", "codec_name": "mp3"}], "format": {"duration": "%.6f"}}`, duration)
}

func outputProbe(duration float64, videoStreams, audioStreams int) string {
	var streams []string
	for i := 0; i < videoStreams; i++ {
		streams = append(streams, `{"codec_type": "video", "width": 1280, "height": 720}`)
	}
	for i := 0; i < audioStreams; i++ {
		streams = append(streams, `{"codec_type": "audio"}`)
	}
	return fmt.Sprintf(`{"streams": [%s], "format": {"duration": "%.6f"}}`, strings.Join(streams, ","), duration)
}

// testEnv bundles real storage and catalog with fake media tools
type testEnv struct {
	store   *storage.Store
	catalog *repository.MemoryCatalog
	media   *fakeMedia
	ffmpeg  *utils.FFmpeg
	tempDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewStore(filepath.Join(root, "uploads"), filepath.Join(root, "processed"))
	require.NoError(t, err)
	media := newFakeMedia()
	return &testEnv{
		store:   store,
		catalog: repository.NewMemoryCatalog(),
		media:   media,
		ffmpeg:  utils.NewFFmpeg(media, "ffmpeg", "ffprobe"),
		tempDir: filepath.Join(root, "temp"),
	}
}

func (e *testEnv) dirEntries(t *testing.T, area storage.Area) []string {
	t.Helper()
	dir, err := e.store.Dir(area)
	require.NoError(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (e *testEnv) tempEntries(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.tempDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func requestCtx(requestID string) context.Context {
	return storage.WithIDSource(context.Background(), storage.NewRequestIDs(requestID))
}

// fakeBackend returns canned clips and records calls
type fakeBackend struct {
	mu       sync.Mutex
	calls    []string
	variants []string
	clip     func(text string) (AudioClip, error)
	inFlight int
	maxSeen  int
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Synthesize(ctx context.Context, text, variant string) (AudioClip, error) {
	b.mu.Lock()
	b.calls = append(b.calls, text)
	b.variants = append(b.variants, variant)
	b.inFlight++
	if b.inFlight > b.maxSeen {
		b.maxSeen = b.inFlight
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inFlight--
		b.mu.Unlock()
	}()

	if b.clip != nil {
		return b.clip(text)
	}
	return AudioClip{Data: []byte("ID3-" + text), Format: AudioFormat{Container: ContainerMP3}}, nil
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
