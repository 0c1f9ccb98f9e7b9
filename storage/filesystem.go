package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Area is one of the two storage namespaces.
type Area string

const (
	AreaRaw       Area = "raw"
	AreaProcessed Area = "processed"
)

// ErrLimitExceeded is returned when a stream is longer than the allowed size.
var ErrLimitExceeded = errors.New("storage: size limit exceeded")

// ErrPathExists is returned instead of replacing a file that is already stored.
var ErrPathExists = errors.New("storage: path already exists")

// Store persists media files into a raw area and a processed area.
// Files are only ever created (temp file + rename) or deleted, never edited in place.
type Store struct {
	rawDir       string
	processedDir string
}

// Object describes a file created by the store.
type Object struct {
	ID   string
	Path string
	Size int64
}

// NewStore initializes both areas, creating directories as needed.
func NewStore(rawDir, processedDir string) (*Store, error) {
	rawDir = strings.TrimSpace(rawDir)
	processedDir = strings.TrimSpace(processedDir)
	if rawDir == "" || processedDir == "" {
		return nil, errors.New("storage: raw and processed directories are required")
	}
	for _, dir := range []string{rawDir, processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure directory %s: %w", dir, err)
		}
	}
	return &Store{rawDir: filepath.Clean(rawDir), processedDir: filepath.Clean(processedDir)}, nil
}

// Dir returns the directory backing an area.
func (s *Store) Dir(area Area) (string, error) {
	switch area {
	case AreaRaw:
		return s.rawDir, nil
	case AreaProcessed:
		return s.processedDir, nil
	}
	return "", fmt.Errorf("storage: unknown area %q", area)
}

// NewPath reserves a collision-free name "<prefix>_<id><ext>" in the area.
// The ID comes from the context's ID source.
func (s *Store) NewPath(ctx context.Context, area Area, prefix, ext string) (id, path string, err error) {
	dir, err := s.Dir(area)
	if err != nil {
		return "", "", err
	}
	id = IDSourceFromContext(ctx).NextID()
	name, err := sanitizeName(fmt.Sprintf("%s_%s%s", prefix, id, normalizeExt(ext)))
	if err != nil {
		return "", "", err
	}
	return id, filepath.Join(dir, name), nil
}

// WriteStream copies r into a new file of the area. At most limit bytes are accepted
// when limit > 0. The file becomes visible only after a complete, synced write.
func (s *Store) WriteStream(ctx context.Context, area Area, prefix, ext string, r io.Reader, limit int64) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	id, finalPath, err := s.NewPath(ctx, area, prefix, ext)
	if err != nil {
		return Object{}, err
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	tmp, err := os.CreateTemp(filepath.Dir(finalPath), ".partial-*")
	if err != nil {
		return Object{}, fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: src})
	if err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("storage: write file: %w", err)
	}
	if limit > 0 && n > limit {
		tmp.Close()
		return Object{}, ErrLimitExceeded
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("storage: sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("storage: close file: %w", err)
	}
	if err := placeNew(tmpPath, finalPath); err != nil {
		return Object{}, fmt.Errorf("storage: publish file: %w", err)
	}
	committed = true

	return Object{ID: id, Path: finalPath, Size: n}, nil
}

// Publish moves a finished file produced elsewhere (e.g. a job temp dir) into the area.
// Rename is tried first; across filesystems the file is copied through a temp file.
func (s *Store) Publish(ctx context.Context, area Area, prefix, ext, srcPath string) (Object, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return Object{}, fmt.Errorf("storage: stat source: %w", err)
	}
	id, finalPath, err := s.NewPath(ctx, area, prefix, ext)
	if err != nil {
		return Object{}, err
	}
	err = placeNew(srcPath, finalPath)
	if err == nil {
		return Object{ID: id, Path: finalPath, Size: info.Size()}, nil
	}
	if errors.Is(err, ErrPathExists) {
		return Object{}, fmt.Errorf("storage: publish file: %w", err)
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return Object{}, fmt.Errorf("storage: open source: %w", err)
	}
	defer f.Close()

	// Fall back to a streamed copy under a fresh name
	obj, err := s.WriteStream(ctx, area, prefix, ext, f, 0)
	if err != nil {
		return Object{}, err
	}
	_ = os.Remove(srcPath)
	return obj, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(path string) (*os.File, error) {
	if !s.Contains(path) {
		return nil, fmt.Errorf("storage: path outside storage areas: %s", path)
	}
	return os.Open(path)
}

// ReadFile returns the full content of a stored file.
func (s *Store) ReadFile(path string) ([]byte, error) {
	if !s.Contains(path) {
		return nil, fmt.Errorf("storage: path outside storage areas: %s", path)
	}
	return os.ReadFile(path)
}

// Exists reports whether a regular file exists at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Delete removes a stored file. Missing files are not an error.
func (s *Store) Delete(path string) error {
	if !s.Contains(path) {
		return fmt.Errorf("storage: path outside storage areas: %s", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete file: %w", err)
	}
	return nil
}

// Contains reports whether path lies directly inside one of the storage areas.
func (s *Store) Contains(path string) bool {
	dir := filepath.Dir(filepath.Clean(path))
	return dir == s.rawDir || dir == s.processedDir
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}

// sanitizeName rejects names that could escape the area directory.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "", errors.New("storage: invalid name")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("storage: invalid name %q", name)
	}
	return name, nil
}

// placeNew moves src to dst without ever replacing an existing dst.
func placeNew(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		_ = os.Remove(src)
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return ErrPathExists
	}
	// no hard links across devices or on this filesystem
	if _, statErr := os.Lstat(dst); statErr == nil {
		return ErrPathExists
	}
	return os.Rename(src, dst)
}

// contextReader stops a copy once the context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
