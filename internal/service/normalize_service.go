package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"satnorm/internal/domain"
	"satnorm/internal/normalize"
	"satnorm/internal/repository"
	"satnorm/pkg/utils"
)

const resultsPrefix = "results/"

type NormalizeService interface {
	// Normalize runs one batch and stores its normalized images. target, when
	// non-nil, replaces the global mean as normalization target.
	Normalize(ctx context.Context, archive []byte, target *float64) (*domain.Run, error)
	ListResults(ctx context.Context, runID string) ([]string, error)
	OpenResult(ctx context.Context, runID, name string) (io.ReadCloser, error)
}

type normalizeService struct {
	store repository.Store
	opts  normalize.Options
	log   *zap.Logger
	proc  *utils.ImageProcessor
}

func NewNormalizeService(store repository.Store, opts normalize.Options, log *zap.Logger) NormalizeService {
	return &normalizeService{
		store: store,
		opts:  opts,
		log:   log,
		proc:  utils.NewImageProcessor(log),
	}
}

func (s *normalizeService) Normalize(ctx context.Context, archive []byte, target *float64) (*domain.Run, error) {
	runID := uuid.New().String()
	log := s.log.With(zap.String("run", runID))

	opts := s.opts
	if target != nil {
		t := *target
		opts.Target = &t
	}

	pipeline, err := normalize.NewPipeline(opts, log)
	if err != nil {
		return nil, err
	}

	log.Info("Starting normalization", zap.Int("archive_size", len(archive)))

	res, err := pipeline.Run(ctx, archive)
	if err != nil {
		log.Error("Normalization failed", zap.Error(err))
		return nil, err
	}

	run := &domain.Run{ID: runID, Report: res.Report}
	run.Report.RunID = runID

	names := newNameSet()
	for i, img := range res.Images {
		name := names.output(img.ID)
		key := resultKey(runID, name)

		if err := s.save(ctx, key, img); err != nil {
			log.Error("Failed to store normalized image",
				zap.String("image", img.ID),
				zap.String("key", key),
				zap.Error(err))
			row := &run.Report.Images[i]
			row.Flags = append(row.Flags, "store failed: "+err.Error())
			continue
		}
		run.Results = append(run.Results, name)
	}

	log.Info("Normalization completed",
		zap.Float64("global_average", run.Report.GlobalMean),
		zap.Int("stored", len(run.Results)),
		zap.Float64("score", run.Report.Score),
		zap.String("verdict", string(run.Report.Verdict)))

	return run, nil
}

func (s *normalizeService) save(ctx context.Context, key string, img domain.NormalizedImage) error {
	data, err := s.proc.EncodePNG(img.Grid)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	contentType := mimetype.Detect(data).String()
	return s.store.UploadFile(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

func (s *normalizeService) ListResults(ctx context.Context, runID string) ([]string, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}

	prefix := resultsPrefix + runID + "/"
	keys, err := s.store.ListFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, prefix))
	}
	return names, nil
}

func (s *normalizeService) OpenResult(ctx context.Context, runID, name string) (io.ReadCloser, error) {
	if err := validateRunID(runID); err != nil {
		return nil, err
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: invalid result name %q", domain.ErrNotFound, name)
	}
	return s.store.DownloadFile(ctx, resultKey(runID, name))
}

func validateRunID(runID string) error {
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("%w: run %q", domain.ErrNotFound, runID)
	}
	return nil
}

func resultKey(runID, name string) string {
	return resultsPrefix + runID + "/" + name
}

// nameSet maps image identifiers to flat, unique output file names.
type nameSet map[string]bool

func newNameSet() nameSet { return nameSet{} }

func (n nameSet) output(id string) string {
	stem := strings.TrimSuffix(id, path.Ext(id))
	stem = strings.NewReplacer("/", "_", `\`, "_", "#", "_", "..", "_").Replace(stem)

	name := "normalized_" + stem + ".png"
	for i := 2; n[name]; i++ {
		name = fmt.Sprintf("normalized_%s_%d.png", stem, i)
	}
	n[name] = true
	return name
}
