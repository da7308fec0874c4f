// Package facematch detects faces in classroom images and matches them against
// enrolled face signatures.
package facematch

import (
	"context"
	"image"

	"github.com/kozaktomas/campus-attendance/internal/signature"
)

// Region is a face bounding box in pixel coordinates.
type Region = signature.Region

// Detector finds face regions in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Region, error)
}

// StaticDetector returns a fixed set of regions for every image. With no
// regions configured it reports the whole image as one face.
type StaticDetector struct {
	Regions   []Region
	WholeFace bool
}

// Detect returns the configured regions clamped to the image bounds.
func (d StaticDetector) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if d.WholeFace {
		return []Region{{X: 0, Y: 0, W: bounds.Dx(), H: bounds.Dy()}}, nil
	}

	regions := make([]Region, 0, len(d.Regions))
	for _, r := range d.Regions {
		if c := ClampRegion(r, image.Rect(0, 0, bounds.Dx(), bounds.Dy())); c.Area() > 0 {
			regions = append(regions, c)
		}
	}
	return regions, nil
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Region, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	return f(ctx, img)
}
