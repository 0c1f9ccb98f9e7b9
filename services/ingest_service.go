package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"voicecaption/models"
	"voicecaption/repository"
	"voicecaption/storage"
)

// sniffLen is how many leading bytes are inspected to detect the container
const sniffLen = 3072

// IngestService persists uploaded video bytes as RawVideo assets
type IngestService struct {
	store    *storage.Store
	catalog  repository.AssetCatalog
	maxBytes int64
	log      zerolog.Logger
}

// NewIngestService creates a new ingest service. maxBytes <= 0 disables the size limit.
func NewIngestService(store *storage.Store, catalog repository.AssetCatalog, maxBytes int64, log zerolog.Logger) *IngestService {
	return &IngestService{
		store:    store,
		catalog:  catalog,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "ingest").Logger(),
	}
}

// Store writes the stream into the raw area. It either returns an asset whose file exists
// or a StorageError with nothing left behind.
func (s *IngestService) Store(ctx context.Context, video io.Reader) (models.MediaAsset, error) {
	if video == nil {
		return models.MediaAsset{}, &models.StorageError{Op: "read", Err: models.ErrEmptyUpload}
	}

	br := bufio.NewReaderSize(video, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return models.MediaAsset{}, &models.StorageError{Op: "read", Err: err}
	}
	if len(head) == 0 {
		return models.MediaAsset{}, &models.StorageError{Op: "read", Err: models.ErrEmptyUpload}
	}

	ext, err := videoExtension(head)
	if err != nil {
		return models.MediaAsset{}, &models.StorageError{Op: "sniff", Err: err}
	}

	obj, err := s.store.WriteStream(ctx, storage.AreaRaw, "uploaded_video", ext, br, s.maxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrLimitExceeded) {
			err = fmt.Errorf("%w: limit %d bytes", models.ErrUploadTooLarge, s.maxBytes)
		}
		return models.MediaAsset{}, &models.StorageError{Op: "write", Err: err}
	}

	asset := models.MediaAsset{
		ID:        obj.ID,
		RequestID: storage.RequestIDFromContext(ctx),
		Path:      obj.Path,
		Kind:      models.AssetRawVideo,
		Size:      obj.Size,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.catalog.Save(ctx, asset); err != nil {
		_ = s.store.Delete(obj.Path)
		return models.MediaAsset{}, &models.StorageError{Op: "register", Err: err}
	}

	s.log.Info().
		Str("request_id", asset.RequestID).
		Str("asset_id", asset.ID).
		Int64("size", asset.Size).
		Str("ext", ext).
		Msg("video stored")
	return asset, nil
}

// videoExtension detects the container from the leading bytes and rejects non-video input
func videoExtension(head []byte) (string, error) {
	mt := mimetype.Detect(head)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			ext := mt.Extension()
			if ext == "" {
				ext = ".mp4"
			}
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s", models.ErrUnsupportedMedia, mt.String())
}
