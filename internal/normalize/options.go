package normalize

import (
	"fmt"
	"math"
	"runtime"

	"satnorm/internal/archive"
	"satnorm/internal/domain"
)

// ZeroMeanPolicy decides what happens to an image whose mean intensity is exactly zero.
type ZeroMeanPolicy string

const (
	// ZeroMeanLeave keeps the image unchanged (scale 1.0) and flags it.
	ZeroMeanLeave ZeroMeanPolicy = "leave"
	// ZeroMeanFill replaces every sample with the target intensity and flags it.
	ZeroMeanFill ZeroMeanPolicy = "fill"
)

const (
	DefaultTolerance     = 1.0
	DefaultMinValue      = 0
	DefaultMaxValue      = 255
	DefaultHistogramBins = 50
)

type Options struct {
	Tolerance float64
	MinValue  float64
	MaxValue  float64
	ZeroMean  ZeroMeanPolicy
	// Target overrides the global mean as normalization target when non-nil.
	Target *float64
	// Workers bounds per-image parallelism; <= 0 means runtime.NumCPU().
	Workers       int
	HistogramBins int
	Refine        bool
	Archive       archive.Options
}

func DefaultOptions() Options {
	return Options{
		Tolerance:     DefaultTolerance,
		MinValue:      DefaultMinValue,
		MaxValue:      DefaultMaxValue,
		ZeroMean:      ZeroMeanLeave,
		HistogramBins: DefaultHistogramBins,
		Archive:       archive.Options{MaxEntryBytes: archive.DefaultMaxEntryBytes},
	}
}

func (o Options) Validate() error {
	switch {
	case math.IsNaN(o.Tolerance) || o.Tolerance < 0:
		return fmt.Errorf("%w: tolerance must be >= 0, got %v", domain.ErrInvalidOptions, o.Tolerance)
	case o.MinValue < 0 || o.MaxValue > 255:
		return fmt.Errorf("%w: value range [%v, %v] exceeds [0, 255]", domain.ErrInvalidOptions, o.MinValue, o.MaxValue)
	case o.MinValue >= o.MaxValue:
		return fmt.Errorf("%w: min value %v must be below max value %v", domain.ErrInvalidOptions, o.MinValue, o.MaxValue)
	case o.ZeroMean != ZeroMeanLeave && o.ZeroMean != ZeroMeanFill:
		return fmt.Errorf("%w: unknown zero mean policy %q", domain.ErrInvalidOptions, o.ZeroMean)
	case o.HistogramBins < 0:
		return fmt.Errorf("%w: histogram bins must be >= 0", domain.ErrInvalidOptions)
	}
	if o.Target != nil && (math.IsNaN(*o.Target) || *o.Target < 0 || *o.Target > 255) {
		return fmt.Errorf("%w: target intensity must be within [0, 255], got %v", domain.ErrInvalidOptions, *o.Target)
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}
