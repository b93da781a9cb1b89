package normalize

import (
	"math"

	"satnorm/internal/domain"
)

// Scaler applies the linear scale-and-clip transform toward a fixed target.
type Scaler struct {
	Target   float64
	Min, Max float64
	ZeroMean ZeroMeanPolicy
	// Refine enables up to two corrective passes for images that miss Tolerance.
	Refine    bool
	Tolerance float64
}

// Normalize produces a new image whose samples are src scaled by Target/mean,
// clipped to [Min, Max] and rounded to the nearest integer. src is not modified.
func (s Scaler) Normalize(src domain.SourceImage, mean float64) domain.NormalizedImage {
	out := domain.NormalizedImage{
		ID:    src.ID,
		Scale: 1.0,
	}

	if mean == 0 {
		out.ZeroMean = true
		switch s.ZeroMean {
		case ZeroMeanFill:
			out.Grid, out.Clipped = s.fill(src.Grid)
		default:
			out.Grid, out.Clipped = s.apply(src.Grid, 1.0)
		}
		return out
	}

	out.Scale = s.Target / mean
	out.Grid, out.Clipped = s.apply(src.Grid, out.Scale)

	if s.Refine {
		s.refine(&out)
	}
	return out
}

// apply multiplies every sample by scale. The returned count is the number of
// samples that fell outside [Min, Max] before clipping.
func (s Scaler) apply(src domain.Grid, scale float64) (domain.Grid, int) {
	dst := domain.NewGrid(src.Width, src.Height)
	clipped := 0
	for i, v := range src.Pix {
		var c bool
		dst.Pix[i], c = s.clip(float64(v) * scale)
		if c {
			clipped++
		}
	}
	return dst, clipped
}

func (s Scaler) shift(src domain.Grid, delta float64) (domain.Grid, int) {
	dst := domain.NewGrid(src.Width, src.Height)
	clipped := 0
	for i, v := range src.Pix {
		var c bool
		dst.Pix[i], c = s.clip(float64(v) + delta)
		if c {
			clipped++
		}
	}
	return dst, clipped
}

func (s Scaler) fill(src domain.Grid) (domain.Grid, int) {
	dst := domain.NewGrid(src.Width, src.Height)
	v, c := s.clip(s.Target)
	for i := range dst.Pix {
		dst.Pix[i] = v
	}
	if c {
		return dst, dst.Len()
	}
	return dst, 0
}

func (s Scaler) clip(f float64) (uint8, bool) {
	clipped := false
	switch {
	case f < s.Min:
		f, clipped = s.Min, true
	case f > s.Max:
		f, clipped = s.Max, true
	}
	return uint8(math.Round(f)), clipped
}

// refine first shifts the image additively toward the target and, if that is
// still out of tolerance, rescales it once more proportionally.
func (s Scaler) refine(out *domain.NormalizedImage) {
	got := Mean(out.Grid)
	if math.Abs(got-s.Target) <= s.Tolerance {
		return
	}

	var clipped int
	out.Grid, clipped = s.shift(out.Grid, s.Target-got)
	out.Clipped += clipped
	out.Refinements++

	got = Mean(out.Grid)
	if math.Abs(got-s.Target) <= s.Tolerance || got == 0 {
		return
	}

	out.Grid, clipped = s.apply(out.Grid, s.Target/got)
	out.Clipped += clipped
	out.Refinements++
}
