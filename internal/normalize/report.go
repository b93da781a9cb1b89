package normalize

import (
	"time"

	"satnorm/internal/archive"
	"satnorm/internal/domain"
)

const (
	FlagResized        = "resized"
	FlagZeroMeanLeft   = "unscaled: zero mean"
	FlagZeroMeanFilled = "filled: zero mean"
	FlagRefined        = "refined"
)

// reportInput gathers everything the reporter needs; all slices share the
// batch index.
type reportInput struct {
	target     float64
	globalMean float64
	tolerance  float64
	bins       int
	zeroMean   ZeroMeanPolicy
	batch      *archive.Batch
	stats      []domain.ImageStats
	normalized []domain.NormalizedImage
	results    []domain.ValidationResult
	startedAt  time.Time
	elapsed    time.Duration
}

func buildReport(in reportInput) domain.BatchReport {
	rep := domain.BatchReport{
		Target:     in.target,
		GlobalMean: in.globalMean,
		Tolerance:  in.tolerance,
		Images:     make([]domain.ImageReport, len(in.results)),
		Ignored:    append([]string(nil), in.batch.Ignored...),
		Total:      len(in.results),
		StartedAt:  in.startedAt,
		Elapsed:    in.elapsed,
	}

	for _, d := range in.batch.Skipped {
		rep.Skipped = append(rep.Skipped, domain.SkippedEntry{
			Entry:  d.Entry,
			Reason: "corrupt: " + d.Err.Error(),
		})
	}

	for i, res := range in.results {
		src := in.batch.Images[i]
		norm := in.normalized[i]

		row := domain.ImageReport{
			ID:         res.ID,
			Entry:      src.Entry,
			Width:      src.Grid.Width,
			Height:     src.Grid.Height,
			MeanBefore: in.stats[i].Mean,
			MeanAfter:  res.Mean,
			Difference: res.Difference,
			Scale:      norm.Scale,
			Clipped:    norm.Clipped,
			Passed:     res.Passed,
			Flags:      append([]string(nil), src.Flags...),
		}
		row.Flags = append(row.Flags, imageFlags(norm, in.zeroMean)...)
		if in.bins > 0 {
			row.HistogramBefore = Histogram(src.Grid, in.bins)
			row.HistogramAfter = Histogram(norm.Grid, in.bins)
		}

		if res.Passed {
			rep.Passed++
		}
		rep.Images[i] = row
	}

	if rep.Total > 0 {
		rep.PassRate = float64(rep.Passed) / float64(rep.Total)
		rep.Score = rep.PassRate * 10
	}
	rep.Verdict = Classify(rep.Passed, rep.Total)

	return rep
}

func imageFlags(n domain.NormalizedImage, policy ZeroMeanPolicy) []string {
	var flags []string
	if n.ZeroMean {
		if policy == ZeroMeanFill {
			flags = append(flags, FlagZeroMeanFilled)
		} else {
			flags = append(flags, FlagZeroMeanLeft)
		}
	}
	if n.Refinements > 0 {
		flags = append(flags, FlagRefined)
	}
	return flags
}

// Histogram buckets 0..255 samples into bins equal-width bins.
func Histogram(g domain.Grid, bins int) []int {
	if bins <= 0 {
		return nil
	}
	h := make([]int, bins)
	for _, v := range g.Pix {
		b := int(v) * bins / 256
		h[b]++
	}
	return h
}
