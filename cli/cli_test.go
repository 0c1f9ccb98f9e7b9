package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"voicecaption/watcher"
)

var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

// fakeMedia answers ffprobe by file name prefix and makes ffmpeg write its output file
type fakeMedia struct {
	mu     sync.Mutex
	probes map[string]string
	calls  int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{probes: map[string]string{
		"uploaded_video": `{"streams": [{"codec_type": "video", "width": 640, "height": 360, "duration": "8.0"}, {"codec_type": "audio"}], "format": {"duration": "8.000000"}}`,
		"voice":          `{"streams": [{"codec_type": "audio"}], "format": {"duration": "1.500000"}}`,
		"composed":       `{"streams": [{"codec_type": "video", "width": 640, "height": 360}, {"codec_type": "audio"}], "format": {"duration": "8.000000"}}`,
	}}
}

func (f *fakeMedia) Execute(ctx context.Context, name string, args ...string) (string, error) {
	return f.ExecuteInDir(ctx, "", name, args...)
}

func (f *fakeMedia) ExecuteInDir(ctx context.Context, dir string, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	last := args[len(args)-1]
	switch name {
	case "ffprobe":
		for prefix, out := range f.probes {
			if strings.HasPrefix(filepath.Base(last), prefix) {
				return out, nil
			}
		}
		return "", errors.New("command 'ffprobe' failed: invalid data")
	case "ffmpeg":
		if !filepath.IsAbs(last) {
			last = filepath.Join(dir, last)
		}
		return "", os.WriteFile(last, []byte("encoded"), 0644)
	}
	return "", fmt.Errorf("unexpected command %s", name)
}

func setupEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-speech"))
	}))
	t.Cleanup(tts.Close)

	t.Setenv("TTS_BACKEND", "translate")
	t.Setenv("TRANSLATE_TTS_BASE_URL", tts.URL+"/%s")
	t.Setenv("UPLOAD_DIR", filepath.Join(root, "uploads"))
	t.Setenv("PROCESSED_DIR", filepath.Join(root, "processed"))
	t.Setenv("TEMP_DIR", filepath.Join(root, "temp"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "disabled")
	return root
}

func runCommand(t *testing.T, media *fakeMedia, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(media)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandListsSubcommands(t *testing.T) {
	cmd := NewRootCommand(newFakeMedia())

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "watch", "compose"})
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestComposeCommandHelloWorld(t *testing.T) {
	root := setupEnv(t)
	video := filepath.Join(root, "clip.mp4")
	require.NoError(t, os.WriteFile(video, append(append([]byte{}, mp4Header...), "frames"...), 0644))

	media := newFakeMedia()
	out, err := runCommand(t, media, "compose", "--video", video, "--text", "Hello world", "--voice", "male", "--request-id", "cli-1")
	require.NoError(t, err)

	var res watcher.Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, "cli-1", res.RequestID)
	assert.Equal(t, "done", res.State)
	assert.Regexp(t, `^cli-1-[0-9a-f]{8}-03$`, res.VideoID)
	assert.Equal(t, "output_video_"+res.VideoID+".mp4", filepath.Base(res.Output))
	assert.FileExists(t, res.Output)
	assert.Equal(t, filepath.Join(root, "processed"), filepath.Dir(res.Output))
}

func TestComposeCommandReportsFailedStage(t *testing.T) {
	root := setupEnv(t)
	video := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(video, []byte("plain text, not a video"), 0644))

	out, err := runCommand(t, newFakeMedia(), "compose", "--video", video, "--text", "Hello", "--voice", "female")
	require.Error(t, err)

	var res watcher.Result
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	assert.Equal(t, "errored", res.State)
	assert.Equal(t, "video_ingest", res.Stage)
	assert.Equal(t, "Failed to save video file", res.Error)
}

func TestComposeCommandRequiresFlags(t *testing.T) {
	setupEnv(t)

	_, err := runCommand(t, newFakeMedia(), "compose", "--text", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video")
}

func TestComposeCommandMissingVideo(t *testing.T) {
	root := setupEnv(t)

	_, err := runCommand(t, newFakeMedia(), "compose", "--video", filepath.Join(root, "nope.mp4"), "--text", "Hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video does not exist")
}
