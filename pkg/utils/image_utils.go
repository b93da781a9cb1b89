package utils

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"satnorm/internal/domain"
)

type ImageProcessor struct {
	log *zap.Logger
}

func NewImageProcessor(log *zap.Logger) *ImageProcessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &ImageProcessor{log: log}
}

// DecodeGray decodes any registered raster format and returns its luminance plane.
func (p *ImageProcessor) DecodeGray(r io.Reader) (*image.Gray, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", err
	}

	gray := ToGray(img)
	if _, ok := img.(*image.Gray); !ok {
		p.log.Debug("Converted image to grayscale",
			zap.String("format", format),
			zap.String("model", fmt.Sprintf("%T", img.ColorModel())))
	}

	return gray, format, nil
}

// ToGray converts img to 8-bit grayscale; *image.Gray inputs are returned as is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}

	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			gray.SetGray(x, y, color.GrayModel.Convert(img.At(x, y)).(color.Gray))
		}
	}
	return gray
}

// Resize resamples src to width x height using Catmull-Rom interpolation.
func (p *ImageProcessor) Resize(src *image.Gray, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)

	p.log.Debug("Image resized",
		zap.Int("from_width", src.Bounds().Dx()),
		zap.Int("from_height", src.Bounds().Dy()),
		zap.Int("width", width),
		zap.Int("height", height))

	return dst
}

// EncodePNG encodes a grid as an 8-bit grayscale PNG.
func (p *ImageProcessor) EncodePNG(g domain.Grid) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g.Gray()); err != nil {
		return nil, err
	}

	p.log.Debug("Image encoded",
		zap.Int("width", g.Width),
		zap.Int("height", g.Height),
		zap.Int("size", buf.Len()))

	return buf.Bytes(), nil
}
