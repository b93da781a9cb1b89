package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"satnorm/internal/domain"
)

type fsRepository struct {
	root string
	log  *zap.Logger
}

// NewFSRepository stores files under root, using slash-separated keys as relative paths.
func NewFSRepository(root string, log *zap.Logger) (Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", root, err)
	}
	return &fsRepository{root: root, log: log}, nil
}

func (r *fsRepository) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(r.root, clean), nil
}

func (r *fsRepository) UploadFile(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	p, err := r.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	// Write to a temp file first so readers never see a partial image.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		r.log.Error("Failed to write file",
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short write for %s: wrote %d of %d bytes", key, n, size)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return err
	}

	r.log.Info("File saved",
		zap.String("path", p),
		zap.String("content_type", contentType),
		zap.Int64("size", n))

	return nil
}

func (r *fsRepository) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := r.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, key)
	}
	return f, err
}

func (r *fsRepository) ListFiles(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
