// Package archive turns a zip container of raster images into an ordered in-memory batch.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"satnorm/internal/domain"
	"satnorm/pkg/utils"
)

// DefaultMaxEntryBytes bounds the decompressed size of a single entry.
const DefaultMaxEntryBytes int64 = 64 << 20

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

var (
	errEntryTooLarge = errors.New("entry exceeds size limit")
	errEmptyImage    = errors.New("image has no samples")
)

type Options struct {
	MaxEntryBytes int64
	// ResizeWidth and ResizeHeight, when both positive, force every image to that size.
	ResizeWidth  int
	ResizeHeight int
}

// Batch is the loader output. Images keep archive entry order.
type Batch struct {
	Images  []domain.SourceImage
	Skipped []*domain.DecodeError
	Ignored []string
}

type Loader struct {
	opts Options
	proc *utils.ImageProcessor
	log  *zap.Logger
}

func NewLoader(opts Options, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = DefaultMaxEntryBytes
	}
	return &Loader{
		opts: opts,
		proc: utils.NewImageProcessor(log),
		log:  log,
	}
}

// Load scans every entry of the zip in data. Corrupt images are collected in
// Batch.Skipped; only an unreadable container or a batch without any image fails.
func (l *Loader) Load(data []byte) (*Batch, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArchive, err)
	}

	batch := &Batch{}
	ids := newIDSet()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if isResourceFork(f.Name) {
			batch.Ignored = append(batch.Ignored, f.Name)
			continue
		}

		raw, err := l.readEntry(f)
		if err != nil {
			if hasImageExt(f.Name) {
				l.skip(batch, f.Name, err)
			} else {
				batch.Ignored = append(batch.Ignored, f.Name)
			}
			continue
		}

		if !hasImageExt(f.Name) && !sniffImage(raw) {
			l.log.Debug("Skipping non-image entry", zap.String("entry", f.Name))
			batch.Ignored = append(batch.Ignored, f.Name)
			continue
		}

		img, err := l.decode(f.Name, raw)
		if err != nil {
			l.skip(batch, f.Name, err)
			continue
		}

		img.ID = ids.assign(f.Name)
		batch.Images = append(batch.Images, img)
	}

	if len(batch.Images) == 0 {
		return batch, fmt.Errorf("%w: scanned %d entries, %d corrupt",
			domain.ErrEmptyBatch, len(zr.File), len(batch.Skipped))
	}

	l.log.Info("Archive loaded",
		zap.Int("images", len(batch.Images)),
		zap.Int("skipped", len(batch.Skipped)),
		zap.Int("ignored", len(batch.Ignored)))

	return batch, nil
}

func (l *Loader) readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(l.opts.MaxEntryBytes) {
		return nil, errEntryTooLarge
	}

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	// The header size can lie; cap what is actually inflated.
	raw, err := io.ReadAll(io.LimitReader(rc, l.opts.MaxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > l.opts.MaxEntryBytes {
		return nil, errEntryTooLarge
	}
	return raw, nil
}

func (l *Loader) decode(name string, raw []byte) (domain.SourceImage, error) {
	gray, _, err := l.proc.DecodeGray(bytes.NewReader(raw))
	if err != nil {
		return domain.SourceImage{}, err
	}
	if gray.Bounds().Empty() {
		return domain.SourceImage{}, errEmptyImage
	}

	img := domain.SourceImage{Entry: name}

	w, h := l.opts.ResizeWidth, l.opts.ResizeHeight
	if w > 0 && h > 0 && (gray.Bounds().Dx() != w || gray.Bounds().Dy() != h) {
		l.log.Warn("Unexpected image dimensions, resizing",
			zap.String("entry", name),
			zap.Int("width", gray.Bounds().Dx()),
			zap.Int("height", gray.Bounds().Dy()),
			zap.Int("expected_width", w),
			zap.Int("expected_height", h))
		gray = l.proc.Resize(gray, w, h)
		img.Flags = append(img.Flags, "resized")
	}

	img.Grid = domain.GridFromGray(gray)
	return img, nil
}

func (l *Loader) skip(batch *Batch, name string, err error) {
	derr := &domain.DecodeError{Entry: name, Err: err}
	l.log.Warn("Skipping corrupt entry", zap.String("entry", name), zap.Error(err))
	batch.Skipped = append(batch.Skipped, derr)
}

func hasImageExt(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

func sniffImage(raw []byte) bool {
	mt := mimetype.Detect(raw)
	return strings.HasPrefix(mt.String(), "image/") && !mt.Is("image/svg+xml")
}

func isResourceFork(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._")
}

// idSet hands out identifiers unique within one batch: the base name first,
// then the full entry path, then a numeric suffix.
type idSet map[string]bool

func newIDSet() idSet { return idSet{} }

func (s idSet) assign(entry string) string {
	candidates := []string{path.Base(entry), entry}
	for _, c := range candidates {
		if !s[c] {
			s[c] = true
			return c
		}
	}
	for n := 2; ; n++ {
		c := fmt.Sprintf("%s#%d", entry, n)
		if !s[c] {
			s[c] = true
			return c
		}
	}
}
