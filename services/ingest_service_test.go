package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecaption/models"
	"voicecaption/storage"
)

func TestIngestStore(t *testing.T) {
	env := newTestEnv(t)
	svc := NewIngestService(env.store, env.catalog, 0, nopLogger())
	payload := fakeVideo("frames")

	asset, err := svc.Store(requestCtx("req1"), bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, models.AssetRawVideo, asset.Kind)
	assert.Equal(t, "req1", asset.RequestID)
	assert.Equal(t, int64(len(payload)), asset.Size)
	assert.True(t, strings.HasSuffix(asset.Path, ".mp4"))

	data, err := os.ReadFile(asset.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = env.catalog.Get(context.Background(), asset.ID)
	assert.NoError(t, err)
}

func TestIngestRejectsEmptyUpload(t *testing.T) {
	env := newTestEnv(t)
	svc := NewIngestService(env.store, env.catalog, 0, nopLogger())

	for _, r := range []io.Reader{nil, bytes.NewReader(nil)} {
		_, err := svc.Store(requestCtx("req"), r)
		var storageErr *models.StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.ErrorIs(t, err, models.ErrEmptyUpload)
	}
	assert.Empty(t, env.dirEntries(t, storage.AreaRaw))
}

func TestIngestRejectsNonVideo(t *testing.T) {
	env := newTestEnv(t)
	svc := NewIngestService(env.store, env.catalog, 0, nopLogger())

	_, err := svc.Store(requestCtx("req"), strings.NewReader("definitely not a video file"))
	assert.ErrorIs(t, err, models.ErrUnsupportedMedia)
	assert.Empty(t, env.dirEntries(t, storage.AreaRaw))
}

func TestIngestSizeLimit(t *testing.T) {
	env := newTestEnv(t)
	svc := NewIngestService(env.store, env.catalog, 32, nopLogger())

	_, err := svc.Store(requestCtx("req"), bytes.NewReader(fakeVideo(strings.Repeat("x", 100))))
	assert.ErrorIs(t, err, models.ErrUploadTooLarge)
	assert.Empty(t, env.dirEntries(t, storage.AreaRaw), "no partial file is left behind")
}

type failingReader struct {
	data []byte
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, errors.New("connection reset")
}

func TestIngestTruncatedStream(t *testing.T) {
	env := newTestEnv(t)
	svc := NewIngestService(env.store, env.catalog, 0, nopLogger())

	_, err := svc.Store(requestCtx("req"), &failingReader{data: fakeVideo("partial")})
	var storageErr *models.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Empty(t, env.dirEntries(t, storage.AreaRaw))
}

func TestIngestPathsNeverCollide(t *testing.T) {
	env := newTestEnv(t)
	svc := NewIngestService(env.store, env.catalog, 0, nopLogger())

	first, err := svc.Store(context.Background(), bytes.NewReader(fakeVideo("same")))
	require.NoError(t, err)
	second, err := svc.Store(context.Background(), bytes.NewReader(fakeVideo("same")))
	require.NoError(t, err)
	assert.NotEqual(t, first.Path, second.Path)

	ctx := requestCtx("req")
	third, err := svc.Store(ctx, bytes.NewReader(fakeVideo("same")))
	require.NoError(t, err)
	fourth, err := svc.Store(ctx, bytes.NewReader(fakeVideo("same")))
	require.NoError(t, err)
	assert.NotEqual(t, third.Path, fourth.Path)
}
