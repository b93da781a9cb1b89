// Package normalize rescales a batch of grayscale images so that every image's
// mean intensity matches one batch-wide target, and reports how well it did.
//
// A run is Loader -> Measure -> GlobalTarget -> (Normalize, Validate) per image
// -> report. Measuring and normalizing fan out over a bounded worker group;
// results are merged by index so output order always equals archive order.
package normalize

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"satnorm/internal/archive"
	"satnorm/internal/domain"
)

// Result is the outcome of one run: the report and the normalized grids in
// archive order, paired with their identifiers.
type Result struct {
	Report domain.BatchReport
	Images []domain.NormalizedImage
}

type Pipeline struct {
	opts   Options
	loader *archive.Loader
	log    *zap.Logger
}

func NewPipeline(opts Options, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		opts:   opts,
		loader: archive.NewLoader(opts.Archive, log),
		log:    log,
	}, nil
}

// Run loads the zip archive in data and normalizes every image in it.
func (p *Pipeline) Run(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()

	batch, err := p.loader.Load(data)
	if err != nil {
		return nil, fmt.Errorf("load archive: %w", err)
	}

	return p.process(ctx, batch, start)
}

// Process normalizes images that are already in memory.
func (p *Pipeline) Process(ctx context.Context, images []domain.SourceImage) (*Result, error) {
	if len(images) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	return p.process(ctx, &archive.Batch{Images: images}, time.Now())
}

func (p *Pipeline) process(ctx context.Context, batch *archive.Batch, start time.Time) (*Result, error) {
	workers := p.opts.workers()

	stats, err := Measure(ctx, batch.Images, workers)
	if err != nil {
		return nil, fmt.Errorf("measure: %w", err)
	}

	globalMean, err := GlobalTarget(stats)
	if err != nil {
		return nil, err
	}
	target := globalMean
	if p.opts.Target != nil {
		target = *p.opts.Target
	}

	p.log.Info("Normalizing images",
		zap.Int("images", len(batch.Images)),
		zap.Float64("global_average", globalMean),
		zap.Float64("target", target))

	scaler := Scaler{
		Target:    target,
		Min:       p.opts.MinValue,
		Max:       p.opts.MaxValue,
		ZeroMean:  p.opts.ZeroMean,
		Refine:    p.opts.Refine,
		Tolerance: p.opts.Tolerance,
	}

	normalized := make([]domain.NormalizedImage, len(batch.Images))
	results := make([]domain.ValidationResult, len(batch.Images))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range batch.Images {
		g.Go(func() error {
			normalized[i] = scaler.Normalize(batch.Images[i], stats[i].Mean)
			results[i] = Validate(normalized[i], target, p.opts.Tolerance)
			p.logImage(stats[i], normalized[i], results[i], target)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := buildReport(reportInput{
		target:     target,
		globalMean: globalMean,
		tolerance:  p.opts.Tolerance,
		bins:       p.opts.HistogramBins,
		zeroMean:   p.opts.ZeroMean,
		batch:      batch,
		stats:      stats,
		normalized: normalized,
		results:    results,
		startedAt:  start,
		elapsed:    time.Since(start),
	})

	p.log.Info("Normalization finished",
		zap.Int("passed", rep.Passed),
		zap.Int("total", rep.Total),
		zap.String("verdict", string(rep.Verdict)),
		zap.Duration("elapsed", rep.Elapsed))

	return &Result{Report: rep, Images: normalized}, nil
}

func (p *Pipeline) logImage(st domain.ImageStats, n domain.NormalizedImage, res domain.ValidationResult, target float64) {
	if n.ZeroMean {
		p.log.Warn("Image has zero average intensity",
			zap.String("image", n.ID),
			zap.String("policy", string(p.opts.ZeroMean)),
			zap.Error(domain.ErrZeroMeanImage))
	}
	if !res.Passed {
		p.log.Warn("Normalization not within tolerance",
			zap.String("image", n.ID),
			zap.Float64("mean", res.Mean),
			zap.Float64("target", target),
			zap.Float64("tolerance", p.opts.Tolerance))
	}
	p.log.Debug("Image normalized",
		zap.String("image", n.ID),
		zap.Float64("mean_before", st.Mean),
		zap.Float64("mean_after", res.Mean),
		zap.Float64("scale", n.Scale),
		zap.Int("clipped", n.Clipped))
}
