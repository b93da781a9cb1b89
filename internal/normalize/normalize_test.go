package normalize

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satnorm/internal/domain"
)

func gridOf(w, h int, pix ...uint8) domain.Grid {
	g := domain.NewGrid(w, h)
	copy(g.Pix, pix)
	return g
}

func uniform(id string, w, h int, v uint8) domain.SourceImage {
	g := domain.NewGrid(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return domain.SourceImage{ID: id, Entry: id, Grid: g}
}

// sparse is a 2x2 image with one saturated sample: its mean is 63.75 and it
// cannot be brightened much without clipping.
func sparse(id string) domain.SourceImage {
	return domain.SourceImage{ID: id, Entry: id, Grid: gridOf(2, 2, 255, 0, 0, 0)}
}

func newTestPipeline(t *testing.T, mutate func(*Options)) *Pipeline {
	t.Helper()
	opts := DefaultOptions()
	opts.Workers = 4
	if mutate != nil {
		mutate(&opts)
	}
	p, err := NewPipeline(opts, nil)
	require.NoError(t, err)
	return p
}

func TestMean(t *testing.T) {
	assert.Equal(t, 2.5, Mean(gridOf(2, 2, 1, 2, 3, 4)))
	assert.Equal(t, 0.0, Mean(domain.Grid{}))

	big := domain.NewGrid(4096, 4096)
	for i := range big.Pix {
		big.Pix[i] = 255
	}
	assert.Equal(t, 255.0, Mean(big))
}

func TestGlobalTarget_Unweighted(t *testing.T) {
	images := []domain.SourceImage{
		uniform("small", 1, 1, 100),
		uniform("large", 10, 10, 0),
	}
	stats, err := Measure(context.Background(), images, 2)
	require.NoError(t, err)

	target, err := GlobalTarget(stats)
	require.NoError(t, err)
	assert.Equal(t, 50.0, target)
}

func TestGlobalTarget_OrderIndependent(t *testing.T) {
	stats := []domain.ImageStats{
		{ID: "a", Mean: 0.1},
		{ID: "b", Mean: 200.3},
		{ID: "c", Mean: 1e-9},
		{ID: "d", Mean: 77.7},
	}
	want, err := GlobalTarget(stats)
	require.NoError(t, err)

	reversed := []domain.ImageStats{stats[3], stats[2], stats[1], stats[0]}
	got, err := GlobalTarget(reversed)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.InDelta(t, (0.1+200.3+1e-9+77.7)/4, got, 1e-9)
}

func TestGlobalTarget_Empty(t *testing.T) {
	_, err := GlobalTarget(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}

func TestMeasure_PreservesOrder(t *testing.T) {
	var images []domain.SourceImage
	for i := 0; i < 50; i++ {
		images = append(images, uniform(string(rune('A'+i)), 3, 3, uint8(i)))
	}
	stats, err := Measure(context.Background(), images, 8)
	require.NoError(t, err)
	require.Len(t, stats, 50)
	for i, s := range stats {
		assert.Equal(t, images[i].ID, s.ID)
		assert.Equal(t, float64(i), s.Mean)
		assert.Equal(t, 9, s.Samples)
	}
}

func TestScaler_ClipAndCount(t *testing.T) {
	s := Scaler{Target: 225, Min: 0, Max: 255, ZeroMean: ZeroMeanLeave}
	src := domain.SourceImage{ID: "x", Grid: gridOf(2, 1, 100, 200)}

	out := s.Normalize(src, 150)
	assert.Equal(t, 1.5, out.Scale)
	assert.Equal(t, []uint8{150, 255}, out.Grid.Pix)
	assert.Equal(t, 1, out.Clipped)
	assert.Equal(t, []uint8{100, 200}, src.Grid.Pix, "source must not be modified")
}

func TestScaler_RoundsToNearest(t *testing.T) {
	s := Scaler{Target: 2.25, Min: 0, Max: 255}
	out := s.Normalize(domain.SourceImage{Grid: gridOf(2, 1, 1, 2)}, 1.5)
	assert.Equal(t, []uint8{2, 3}, out.Grid.Pix)
	assert.Zero(t, out.Clipped)
}

func TestScaler_RangeInvariant(t *testing.T) {
	g := domain.NewGrid(16, 16)
	for i := range g.Pix {
		g.Pix[i] = uint8(i)
	}
	src := domain.SourceImage{ID: "ramp", Grid: g}
	mean := Mean(g)

	for _, target := range []float64{0, 1, 30, 127.5, 200, 255} {
		s := Scaler{Target: target, Min: 10, Max: 240}
		out := s.Normalize(src, mean)
		require.Equal(t, g.Len(), out.Grid.Len())
		for _, v := range out.Grid.Pix {
			assert.GreaterOrEqual(t, v, uint8(10))
			assert.LessOrEqual(t, v, uint8(240))
		}
	}
}

func TestScaler_ZeroMean(t *testing.T) {
	black := uniform("black", 4, 4, 0)

	left := Scaler{Target: 50, Min: 0, Max: 255, ZeroMean: ZeroMeanLeave}.Normalize(black, 0)
	assert.True(t, left.ZeroMean)
	assert.Equal(t, 1.0, left.Scale)
	assert.Equal(t, black.Grid.Pix, left.Grid.Pix)

	filled := Scaler{Target: 50.4, Min: 0, Max: 255, ZeroMean: ZeroMeanFill}.Normalize(black, 0)
	assert.True(t, filled.ZeroMean)
	for _, v := range filled.Grid.Pix {
		assert.Equal(t, uint8(50), v)
	}
}

func TestScaler_Refine(t *testing.T) {
	// Scaling alone leaves the sparse image far below target because the
	// bright sample saturates; the additive pass lifts the dark samples.
	s := Scaler{Target: 120, Min: 0, Max: 255, Tolerance: 1}
	plain := s.Normalize(sparse("s"), 63.75)
	assert.Zero(t, plain.Refinements)
	assert.Equal(t, 63.75, Mean(plain.Grid))

	s.Refine = true
	out := s.Normalize(sparse("s"), 63.75)
	assert.Equal(t, 2, out.Refinements)
	// 255 stays saturated; 0 -> 56 (shift) -> 64 (rescale).
	assert.Equal(t, []uint8{255, 64, 64, 64}, out.Grid.Pix)
	assert.Less(t, math.Abs(Mean(out.Grid)-120), math.Abs(Mean(plain.Grid)-120))
}

func TestWithinTolerance_Boundary(t *testing.T) {
	assert.True(t, WithinTolerance(51, 50, 1.0))
	assert.True(t, WithinTolerance(49, 50, 1.0))
	assert.False(t, WithinTolerance(51.0001, 50, 1.0))
	assert.False(t, WithinTolerance(48.9999, 50, 1.0))
}

func TestValidate(t *testing.T) {
	img := domain.NormalizedImage{ID: "v", Grid: gridOf(2, 1, 50, 52)}

	res := Validate(img, 50, 1.0)
	assert.Equal(t, "v", res.ID)
	assert.Equal(t, 51.0, res.Mean)
	assert.Equal(t, 1.0, res.Difference)
	assert.True(t, res.Passed)

	res = Validate(img, 49.9999, 1.0)
	assert.False(t, res.Passed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		passed, total int
		want          domain.Verdict
	}{
		{5, 5, domain.VerdictExcellent},
		{1, 1, domain.VerdictExcellent},
		{4, 5, domain.VerdictGood},
		{8, 10, domain.VerdictGood},
		{99, 100, domain.VerdictGood},
		{79, 100, domain.VerdictModerate},
		{1, 2, domain.VerdictModerate},
		{5, 10, domain.VerdictModerate},
		{49, 100, domain.VerdictPoor},
		{2, 5, domain.VerdictPoor},
		{0, 1, domain.VerdictPoor},
		{0, 0, domain.VerdictPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.passed, tt.total), "%d/%d", tt.passed, tt.total)
	}
}

func TestHistogram(t *testing.T) {
	g := gridOf(4, 1, 0, 6, 255, 255)
	h := Histogram(g, 50)
	require.Len(t, h, 50)
	assert.Equal(t, 1, h[0])
	assert.Equal(t, 1, h[1])
	assert.Equal(t, 2, h[49])
	assert.Nil(t, Histogram(g, 0))
}

func TestOptions_Validate(t *testing.T) {
	target := 300.0
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"negative tolerance", func(o *Options) { o.Tolerance = -1 }},
		{"nan tolerance", func(o *Options) { o.Tolerance = math.NaN() }},
		{"inverted range", func(o *Options) { o.MinValue, o.MaxValue = 200, 100 }},
		{"range above 255", func(o *Options) { o.MaxValue = 300 }},
		{"unknown policy", func(o *Options) { o.ZeroMean = "explode" }},
		{"negative bins", func(o *Options) { o.HistogramBins = -1 }},
		{"target out of range", func(o *Options) { o.Target = &target }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			assert.ErrorIs(t, opts.Validate(), domain.ErrInvalidOptions)
		})
	}
	assert.NoError(t, DefaultOptions().Validate())
}
