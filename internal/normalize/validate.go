package normalize

import (
	"math"

	"satnorm/internal/domain"
)

// WithinTolerance reports whether |mean-target| <= tolerance. The bound is inclusive.
func WithinTolerance(mean, target, tolerance float64) bool {
	return math.Abs(mean-target) <= tolerance
}

// Validate recomputes the mean of a normalized image and compares it to target.
func Validate(img domain.NormalizedImage, target, tolerance float64) domain.ValidationResult {
	m := Mean(img.Grid)
	return domain.ValidationResult{
		ID:         img.ID,
		Mean:       m,
		Difference: math.Abs(m - target),
		Passed:     WithinTolerance(m, target, tolerance),
	}
}

// Classify maps passed/total to a verdict. Thresholds are compared in integer
// arithmetic so that 80% and 50% land on GOOD and MODERATE exactly.
func Classify(passed, total int) domain.Verdict {
	switch {
	case total <= 0:
		return domain.VerdictPoor
	case passed >= total:
		return domain.VerdictExcellent
	case passed*100 >= total*80:
		return domain.VerdictGood
	case passed*100 >= total*50:
		return domain.VerdictModerate
	default:
		return domain.VerdictPoor
	}
}
