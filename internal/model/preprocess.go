package model

import (
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
)

// ToRGB flattens any decoded image into opaque 8-bit RGB. Alpha is dropped
// rather than composited, grayscale and paletted images are expanded.
func ToRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgb := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return rgb
}

// Preprocessor reproduces the eval transform the classifier was trained with:
// resize the shorter side, center crop, normalize, CHW layout.
type Preprocessor struct {
	resizeSize uint
	cropSize   int
	mean       [3]float32
	std        [3]float32
}

func NewPreprocessor(metadata Metadata) *Preprocessor {
	return &Preprocessor{
		resizeSize: uint(metadata.ResizeSize),
		cropSize:   metadata.CropSize,
		mean:       metadata.Mean,
		std:        metadata.Std,
	}
}

// InputSize is the length of the slice Preprocess returns.
func (p *Preprocessor) InputSize() int {
	return 3 * p.cropSize * p.cropSize
}

// Preprocess converts an RGB image to the model's input tensor data.
func (p *Preprocessor) Preprocess(img image.Image) []float32 {
	bounds := img.Bounds()
	var resized image.Image
	if bounds.Dx() <= bounds.Dy() {
		resized = resize.Resize(p.resizeSize, 0, img, resize.Bilinear)
	} else {
		resized = resize.Resize(0, p.resizeSize, img, resize.Bilinear)
	}

	rb := resized.Bounds()
	left := rb.Min.X + cropOffset(rb.Dx()-p.cropSize)
	top := rb.Min.Y + cropOffset(rb.Dy()-p.cropSize)

	size := p.cropSize
	plane := size * size
	inputData := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(left+x, top+y).RGBA()

			pixelIndex := y*size + x
			inputData[pixelIndex] = (float32(r)/65535.0 - p.mean[0]) / p.std[0]
			inputData[plane+pixelIndex] = (float32(g)/65535.0 - p.mean[1]) / p.std[1]
			inputData[2*plane+pixelIndex] = (float32(b)/65535.0 - p.mean[2]) / p.std[2]
		}
	}

	return inputData
}

// cropOffset centers a crop inside a margin of d pixels, rounding half to even.
func cropOffset(d int) int {
	return int(math.RoundToEven(float64(d) / 2))
}
