package normalize

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"satnorm/internal/domain"
)

// Mean returns the arithmetic mean of the grid samples. Sums are accumulated
// exactly in uint64, so the result does not depend on grid size or order.
func Mean(g domain.Grid) float64 {
	if g.Len() == 0 {
		return 0
	}
	var sum uint64
	for _, v := range g.Pix {
		sum += uint64(v)
	}
	return float64(sum) / float64(g.Len())
}

// Measure computes ImageStats for every image, preserving input order.
func Measure(ctx context.Context, images []domain.SourceImage, workers int) ([]domain.ImageStats, error) {
	stats := make([]domain.ImageStats, len(images))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range images {
		g.Go(func() error {
			img := images[i]
			stats[i] = domain.ImageStats{
				ID:      img.ID,
				Mean:    Mean(img.Grid),
				Samples: img.Grid.Len(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, ctx.Err()
}

// GlobalTarget is the unweighted mean of the per-image means: every image
// counts once regardless of its pixel count. Means are summed in sorted order
// so the result is identical for any permutation of the batch.
func GlobalTarget(stats []domain.ImageStats) (float64, error) {
	if len(stats) == 0 {
		return 0, domain.ErrEmptyBatch
	}
	means := make([]float64, len(stats))
	for i, s := range stats {
		means[i] = s.Mean
	}
	slices.Sort(means)
	return stat.Mean(means, nil), nil
}
