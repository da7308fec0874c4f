package facematch

import (
	"image"
	"math"
	"sort"
)

// ComputeIoU calculates Intersection over Union between two regions.
func ComputeIoU(a, b Region) float64 {
	inter := a.Rect().Intersect(b.Rect())
	if inter.Empty() {
		return 0 // No intersection
	}

	intersection := float64(inter.Dx() * inter.Dy())
	union := float64(a.Area()+b.Area()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// CornerBBoxToRegion converts a [x1, y1, x2, y2] pixel box to a Region,
// rounding outwards so the face is never cut.
func CornerBBoxToRegion(bbox []float64) (Region, bool) {
	if len(bbox) != 4 {
		return Region{}, false
	}
	x1 := int(math.Floor(bbox[0]))
	y1 := int(math.Floor(bbox[1]))
	x2 := int(math.Ceil(bbox[2]))
	y2 := int(math.Ceil(bbox[3]))
	if x2 <= x1 || y2 <= y1 {
		return Region{}, false
	}
	return Region{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}, true
}

// ClampRegion restricts r to bounds. The result may be empty.
func ClampRegion(r Region, bounds image.Rectangle) Region {
	rect := r.Rect().Intersect(bounds)
	return Region{X: rect.Min.X, Y: rect.Min.Y, W: rect.Dx(), H: rect.Dy()}
}

// SuppressOverlaps drops regions overlapping a higher scored region by more
// than maxIoU. Ties in score keep the larger region. The input order of
// survivors is preserved.
func SuppressOverlaps(regions []Region, scores []float64, maxIoU float64) []Region {
	if len(regions) < 2 {
		return regions
	}

	order := make([]int, len(regions))
	for i := range order {
		order[i] = i
	}
	score := func(i int) float64 {
		if i < len(scores) {
			return scores[i]
		}
		return 0
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if score(ia) != score(ib) {
			return score(ia) > score(ib)
		}
		return regions[ia].Area() > regions[ib].Area()
	})

	suppressed := make([]bool, len(regions))
	for n, i := range order {
		if suppressed[i] {
			continue
		}
		for _, j := range order[n+1:] {
			if !suppressed[j] && ComputeIoU(regions[i], regions[j]) > maxIoU {
				suppressed[j] = true
			}
		}
	}

	kept := make([]Region, 0, len(regions))
	for i, r := range regions {
		if !suppressed[i] {
			kept = append(kept, r)
		}
	}
	return kept
}
