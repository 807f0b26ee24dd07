package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"goprep/domain/core"
	domainDataset "goprep/domain/dataset"
	"goprep/internal/errors"
	"goprep/ports"
)

// LocalFileStorage keeps one session's uploads in a directory. Files are
// stored under their original base name, which becomes the dataset
// identifier; uploading the same name again replaces the file.
type LocalFileStorage struct {
	basePath    string
	maxFileSize int64
	chunkSize   int
}

// NewLocalFileStorage creates storage rooted at basePath. maxFileSize <= 0
// disables the size limit.
func NewLocalFileStorage(basePath string, maxFileSize int64) *LocalFileStorage {
	return &LocalFileStorage{basePath: basePath, maxFileSize: maxFileSize, chunkSize: 64 * 1024}
}

var _ ports.DatasetStore = (*LocalFileStorage)(nil)

// Store copies r into the storage directory
func (s *LocalFileStorage) Store(ctx context.Context, r io.Reader, filename string) (domainDataset.Handle, error) {
	name, err := sanitizeName(filename)
	if err != nil {
		return domainDataset.Handle{}, err
	}
	if !domainDataset.SupportedFile(name) {
		return domainDataset.Handle{}, errors.InvalidInput(fmt.Sprintf("unsupported file type: %s (expected .csv or .xlsx)", name))
	}
	if err := os.MkdirAll(s.basePath, 0o755); err != nil {
		return domainDataset.Handle{}, fmt.Errorf("failed to create storage directory: %w", err)
	}

	// write to a temp file first so a failed upload never replaces a good one
	tmp, err := os.CreateTemp(s.basePath, ".upload-*")
	if err != nil {
		return domainDataset.Handle{}, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := r
	if s.maxFileSize > 0 {
		src = io.LimitReader(r, s.maxFileSize+1)
	}
	buf := make([]byte, s.chunkSize)
	written, err := io.CopyBuffer(tmp, src, buf)
	closeErr := tmp.Close()
	if err != nil {
		return domainDataset.Handle{}, fmt.Errorf("failed to copy file contents: %w", err)
	}
	if closeErr != nil {
		return domainDataset.Handle{}, fmt.Errorf("failed to write file: %w", closeErr)
	}
	if s.maxFileSize > 0 && written > s.maxFileSize {
		return domainDataset.Handle{}, errors.InvalidInput(fmt.Sprintf("%s exceeds the %d byte upload limit", name, s.maxFileSize))
	}
	if err := ctx.Err(); err != nil {
		return domainDataset.Handle{}, err
	}

	path := filepath.Join(s.basePath, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return domainDataset.Handle{}, fmt.Errorf("failed to store %s: %w", name, err)
	}
	return s.handle(path)
}

// List returns the stored datasets ordered by identifier
func (s *LocalFileStorage) List(ctx context.Context) ([]domainDataset.Handle, error) {
	entries, err := os.ReadDir(s.basePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	handles := make([]domainDataset.Handle, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		h, err := s.handle(filepath.Join(s.basePath, e.Name()))
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].ID < handles[j].ID })
	return handles, nil
}

// Remove deletes a stored dataset
func (s *LocalFileStorage) Remove(ctx context.Context, id core.DatasetID) error {
	name, err := sanitizeName(id.String())
	if err != nil || name != id.String() {
		return errors.InvalidInput("invalid dataset id")
	}
	if err := os.Remove(filepath.Join(s.basePath, name)); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("dataset " + name)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *LocalFileStorage) handle(path string) (domainDataset.Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domainDataset.Handle{}, fmt.Errorf("failed to get file info: %w", err)
	}
	h := domainDataset.NewHandle(path)
	h.Size = info.Size()
	h.UploadedAt = info.ModTime().UTC()
	return h, nil
}

// sanitizeName reduces an uploaded filename to a safe base name
func sanitizeName(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return "", errors.InvalidInput(fmt.Sprintf("invalid file name %q", filename))
	}
	return name, nil
}
