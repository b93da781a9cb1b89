package domain

import (
	"image"
	"time"
)

// Grid is a row-major plane of 8-bit intensity samples.
type Grid struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Pix    []uint8 `json:"-"`
}

func NewGrid(width, height int) Grid {
	return Grid{Width: width, Height: height, Pix: make([]uint8, width*height)}
}

// GridFromGray copies an *image.Gray into a compact grid, dropping any stride padding.
func GridFromGray(img *image.Gray) Grid {
	b := img.Bounds()
	g := NewGrid(b.Dx(), b.Dy())
	for y := 0; y < g.Height; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(g.Pix[y*g.Width:(y+1)*g.Width], img.Pix[off:off+g.Width])
	}
	return g
}

// Gray returns an *image.Gray view over a copy of the samples.
func (g Grid) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	copy(img.Pix, g.Pix)
	return img
}

func (g Grid) Len() int { return len(g.Pix) }

type SourceImage struct {
	ID    string `json:"id"`
	Entry string `json:"entry"`
	Grid  Grid   `json:"grid"`
	// Flags carries loader diagnostics such as "resized".
	Flags []string `json:"flags,omitempty"`
}

type ImageStats struct {
	ID      string  `json:"id"`
	Mean    float64 `json:"mean"`
	Samples int     `json:"samples"`
}

type NormalizedImage struct {
	ID          string  `json:"id"`
	Grid        Grid    `json:"grid"`
	Scale       float64 `json:"scale"`
	Clipped     int     `json:"clipped"`
	ZeroMean    bool    `json:"zero_mean"`
	Refinements int     `json:"refinements"`
}

type ValidationResult struct {
	ID         string  `json:"id"`
	Mean       float64 `json:"mean"`
	Difference float64 `json:"difference"`
	Passed     bool    `json:"passed"`
}

type Verdict string

const (
	VerdictExcellent Verdict = "EXCELLENT"
	VerdictGood      Verdict = "GOOD"
	VerdictModerate  Verdict = "MODERATE"
	VerdictPoor      Verdict = "POOR"
)

// ImageReport is one row of a BatchReport: the before/after view of a single image.
type ImageReport struct {
	ID         string   `json:"id"`
	Entry      string   `json:"entry"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	MeanBefore float64  `json:"mean_before"`
	MeanAfter  float64  `json:"mean_after"`
	Difference float64  `json:"difference_from_target"`
	Scale      float64  `json:"scale"`
	Clipped    int      `json:"clipped"`
	Passed     bool     `json:"within_threshold"`
	Flags      []string `json:"flags,omitempty"`

	HistogramBefore []int `json:"histogram_before,omitempty"`
	HistogramAfter  []int `json:"histogram_after,omitempty"`
}

type SkippedEntry struct {
	Entry  string `json:"entry"`
	Reason string `json:"reason"`
}

type BatchReport struct {
	RunID      string         `json:"run_id,omitempty"`
	Target     float64        `json:"target"`
	GlobalMean float64        `json:"global_average"`
	Tolerance  float64        `json:"tolerance"`
	Images     []ImageReport  `json:"images"`
	Skipped    []SkippedEntry `json:"skipped,omitempty"`
	Ignored    []string       `json:"ignored,omitempty"`
	Passed     int            `json:"images_within_threshold"`
	Total      int            `json:"image_count"`
	PassRate   float64        `json:"pass_rate"`
	Score      float64        `json:"score"`
	Verdict    Verdict        `json:"verdict"`
	StartedAt  time.Time      `json:"started_at"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
}

// Run is what the service hands back to presentation layers after a batch completes.
type Run struct {
	ID      string      `json:"id"`
	Report  BatchReport `json:"report"`
	Results []string    `json:"results"`
}
