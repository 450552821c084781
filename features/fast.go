// Package features is the built-in descriptor provider: FAST corner
// detection followed by BRIEF descriptors, emitted as float vectors so they
// feed the same matching and hashing paths as descriptors from any external
// provider.
package features

import (
	"image"
	"sort"
)

// fastCircle is the 16-pixel Bresenham circle of radius 3 around a corner
// candidate, in clockwise order.
var fastCircle = [16]image.Point{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// FASTConfig configures the corner detector.
type FASTConfig struct {
	// Threshold is the minimum absolute intensity difference to the center
	// for a circle pixel to count as brighter or darker.
	Threshold int `json:"threshold"`
	// MinContiguous is the arc length of consecutive brighter or darker
	// circle pixels required for a corner (classic FAST-12 uses 12).
	MinContiguous int `json:"min_contiguous"`
	// NMSRadius suppresses weaker corners within this radius of a stronger
	// one; 0 disables suppression.
	NMSRadius int `json:"nms_radius"`
}

// DefaultFASTConfig mirrors the usual FAST-12 setup.
func DefaultFASTConfig() FASTConfig {
	return FASTConfig{Threshold: 20, MinContiguous: 12, NMSRadius: 3}
}

type scoredCorner struct {
	pt    image.Point
	score int
}

// DetectFAST finds corners in a gray image, strongest first so callers can
// cap the count and keep the best responses. Equal scores stay in scan order.
func DetectFAST(img *image.Gray, cfg FASTConfig) []image.Point {
	bounds := img.Bounds()
	var corners []scoredCorner
	for y := bounds.Min.Y + 3; y < bounds.Max.Y-3; y++ {
		for x := bounds.Min.X + 3; x < bounds.Max.X-3; x++ {
			if score, ok := cornerScore(img, x, y, cfg); ok {
				corners = append(corners, scoredCorner{image.Point{X: x, Y: y}, score})
			}
		}
	}
	if cfg.NMSRadius > 0 {
		corners = suppressNonMaxima(corners, cfg.NMSRadius)
	}
	sort.SliceStable(corners, func(i, j int) bool {
		return corners[i].score > corners[j].score
	})
	out := make([]image.Point, len(corners))
	for i, c := range corners {
		out[i] = c.pt
	}
	return out
}

// suppressNonMaxima drops corners with a stronger neighbour within the
// radius; equal scores break toward the earlier scan position.
func suppressNonMaxima(corners []scoredCorner, radius int) []scoredCorner {
	kept := make([]scoredCorner, 0, len(corners))
	scores := make(map[image.Point]int, len(corners))
	for _, c := range corners {
		scores[c.pt] = c.score
	}
	for _, c := range corners {
		best := true
		for dy := -radius; dy <= radius && best; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				n := image.Point{X: c.pt.X + dx, Y: c.pt.Y + dy}
				if s, ok := scores[n]; ok && (s > c.score || (s == c.score && lessPoint(n, c.pt))) {
					best = false
					break
				}
			}
		}
		if best {
			kept = append(kept, c)
		}
	}
	return kept
}

// cornerScore runs the segment test at (x, y) and, for corners, returns the
// sum of absolute differences along the strongest arc.
func cornerScore(img *image.Gray, x, y int, cfg FASTConfig) (int, bool) {
	center := int(img.GrayAt(x, y).Y)
	var brighter, darker [16]bool
	var diff [16]int
	for i, off := range fastCircle {
		v := int(img.GrayAt(x+off.X, y+off.Y).Y)
		diff[i] = v - center
		brighter[i] = diff[i] > cfg.Threshold
		darker[i] = diff[i] < -cfg.Threshold
	}
	score := 0
	if n, s := longestArc(brighter[:], diff[:]); n >= cfg.MinContiguous {
		score = s
	}
	if n, s := longestArc(darker[:], diff[:]); n >= cfg.MinContiguous && s > score {
		score = s
	}
	return score, score > 0
}

// longestArc returns the length of the longest run of set flags on the
// circular buffer, and the sum of absolute diffs along it.
func longestArc(flags []bool, diff []int) (int, int) {
	n := len(flags)
	bestLen, bestScore := 0, 0
	runLen, runScore := 0, 0
	// walk twice around the circle to catch wrap-around arcs
	for i := 0; i < 2*n; i++ {
		if flags[i%n] {
			runLen++
			runScore += abs(diff[i%n])
			if runLen > bestLen {
				bestLen = runLen
				bestScore = runScore
			}
			if runLen == n {
				break
			}
		} else {
			runLen, runScore = 0, 0
		}
	}
	if bestLen > n {
		bestLen = n
	}
	return bestLen, bestScore
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func lessPoint(a, b image.Point) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}
