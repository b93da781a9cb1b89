// Package synth builds archives of synthetic grayscale images with known
// brightness, for demos and tests.
package synth

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"math/rand/v2"
)

type Params struct {
	Num  int
	Size int
	// MinIntensity and MaxIntensity bound the linearly spaced base intensities.
	MinIntensity float64
	MaxIntensity float64
	NoiseSigma   float64
	Seed         uint64
}

func DefaultParams() Params {
	return Params{
		Num:          10,
		Size:         256,
		MinIntensity: 50,
		MaxIntensity: 200,
		NoiseSigma:   15,
		Seed:         1,
	}
}

// Entry is one file to place in an archive.
type Entry struct {
	Name string
	Data []byte
}

// Images renders p.Num noisy images named image1.png..imageN.png.
func Images(p Params) ([]Entry, error) {
	if p.Num <= 0 || p.Size <= 0 {
		return nil, fmt.Errorf("num and size must be positive, got %d and %d", p.Num, p.Size)
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	entries := make([]Entry, 0, p.Num)

	for i := 0; i < p.Num; i++ {
		base := p.MinIntensity
		if p.Num > 1 {
			base += (p.MaxIntensity - p.MinIntensity) * float64(i) / float64(p.Num-1)
		}

		img := image.NewGray(image.Rect(0, 0, p.Size, p.Size))
		for j := range img.Pix {
			v := base + rng.NormFloat64()*p.NoiseSigma
			img.Pix[j] = uint8(math.Round(math.Min(math.Max(v, 0), 255)))
		}

		data, err := EncodePNG(img)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: fmt.Sprintf("image%d.png", i+1), Data: data})
	}
	return entries, nil
}

// Uniform returns a PNG whose every sample is v.
func Uniform(w, h int, v uint8) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	data, _ := EncodePNG(img)
	return data
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteZip writes entries to w as a zip archive, in order.
func WriteZip(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		f, err := zw.Create(e.Name)
		if err != nil {
			return err
		}
		if _, err := f.Write(e.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}

func Zip(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteZip(&buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
