// Package signature derives fixed-length face signatures from cropped face images
// and compares them.
package signature

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// Size is the side length of the square intensity grid a face is resized to.
	Size = 100

	// Dim is the length of every signature vector (Size * Size).
	Dim = Size * Size
)

// ErrImageDecode is returned when image bytes cannot be decoded.
var ErrImageDecode = errors.New("image could not be decoded")

// ErrDimension is returned when a vector does not have Dim elements.
var ErrDimension = fmt.Errorf("signature must have %d elements", Dim)

// Region is an axis-aligned face region in pixel coordinates.
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Area returns the region's area in pixels.
func (r Region) Area() int {
	return r.W * r.H
}

// Decode decodes JPEG, PNG, GIF, BMP or WebP bytes, applying EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrImageDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

// Crop cuts the region out of img. The region is clamped to the image bounds.
func Crop(img image.Image, r Region) image.Image {
	rect := r.Rect().Add(img.Bounds().Min).Intersect(img.Bounds())
	if rect.Empty() {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	return imaging.Crop(img, rect)
}

// Derive converts a cropped face into its signature: single-channel intensity,
// resized to Size x Size, scaled to [0,1] and flattened row by row.
// The same input always yields the same vector.
func Derive(face image.Image) []float32 {
	vec := make([]float32, Dim)
	if face.Bounds().Empty() {
		return vec
	}

	gray := toGray(face)
	resized := image.NewGray(image.Rect(0, 0, Size, Size))
	draw.BiLinear.Scale(resized, resized.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	for y := range Size {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+Size]
		for x, v := range row {
			vec[y*Size+x] = float32(v) / 255.0
		}
	}
	return vec
}

// toGray converts an image to 8-bit intensity using the ITU-R BT.601 luma weights.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
			gray.Pix[(y-b.Min.Y)*gray.Stride+(x-b.Min.X)] = uint8(math.Min(255, math.Round(luma)))
		}
	}
	return gray
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Zero-magnitude vectors and vectors of different length yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	return math.Max(-1, math.Min(1, similarity))
}

// Round2 rounds to two decimal places, halves away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// Validate checks that a vector has the signature dimension.
func Validate(vec []float32) error {
	if len(vec) != Dim {
		return fmt.Errorf("%w: got %d", ErrDimension, len(vec))
	}
	return nil
}
