package features

import (
	"image"
	"image/color"
	"math/rand"

	"github.com/ajaycharan/libhaloc/observation"
)

// BRIEFConfig configures the descriptor computation.
type BRIEFConfig struct {
	// N is the number of intensity comparisons, and so the descriptor
	// dimension.
	N int `json:"n"`
	// PatchSize is the side of the square patch the comparisons sample.
	PatchSize int `json:"patch_size"`
	// Seed fixes the sample-pair layout so descriptors are reproducible
	// across runs.
	Seed int64 `json:"seed"`
}

// DefaultBRIEFConfig mirrors the common 256-bit BRIEF over a 48-pixel patch.
func DefaultBRIEFConfig() BRIEFConfig {
	return BRIEFConfig{N: 256, PatchSize: 48, Seed: 1}
}

// SamplePairs are the N point pairs compared to build a descriptor.
type SamplePairs struct {
	P0 []image.Point
	P1 []image.Point
	N  int
}

// GenerateSamplePairs draws N pairs uniformly inside the patch from the
// seeded source, so a config always produces the same layout.
func GenerateSamplePairs(cfg BRIEFConfig) *SamplePairs {
	//nolint:gosec // reproducible layout, not cryptographic material
	r := rand.New(rand.NewSource(cfg.Seed))
	half := cfg.PatchSize / 2
	p0 := make([]image.Point, cfg.N)
	p1 := make([]image.Point, cfg.N)
	for i := 0; i < cfg.N; i++ {
		p0[i] = image.Point{X: r.Intn(cfg.PatchSize) - half, Y: r.Intn(cfg.PatchSize) - half}
		p1[i] = image.Point{X: r.Intn(cfg.PatchSize) - half, Y: r.Intn(cfg.PatchSize) - half}
	}
	return &SamplePairs{P0: p0, P1: p1, N: cfg.N}
}

// ComputeBRIEFDescriptors computes one descriptor per keypoint: the blurred
// image is sampled at the pair layout around the keypoint and each comparison
// contributes a 0/1 component. Keypoints whose patch leaves the image get an
// all-zero descriptor, like any bland patch would.
func ComputeBRIEFDescriptors(img *image.Gray, sp *SamplePairs, kps []image.Point,
	cfg BRIEFConfig,
) observation.Descriptors {
	blurred := blurGray(img)
	bnd := blurred.Bounds()
	halfSize := cfg.PatchSize / 2
	descs := make(observation.Descriptors, len(kps))
	for k, kp := range kps {
		descriptor := make([]float64, sp.N)
		descs[k] = descriptor
		p1 := image.Point{X: kp.X + halfSize, Y: kp.Y + halfSize}
		p2 := image.Point{X: kp.X + halfSize, Y: kp.Y - halfSize}
		p3 := image.Point{X: kp.X - halfSize, Y: kp.Y + halfSize}
		p4 := image.Point{X: kp.X - halfSize, Y: kp.Y - halfSize}
		if !p1.In(bnd) || !p2.In(bnd) || !p3.In(bnd) || !p4.In(bnd) {
			continue
		}
		for i := 0; i < sp.N; i++ {
			p0Val := blurred.GrayAt(kp.X+sp.P0[i].X, kp.Y+sp.P0[i].Y).Y
			p1Val := blurred.GrayAt(kp.X+sp.P1[i].X, kp.Y+sp.P1[i].Y).Y
			if p0Val > p1Val {
				descriptor[i] = 1
			}
		}
	}
	return descs
}

// blurGray applies a 5x1/1x5 separable binomial blur, enough to stabilize the
// BRIEF comparisons against pixel noise.
func blurGray(img *image.Gray) *image.Gray {
	kernel := [5]int{1, 4, 6, 4, 1}
	bounds := img.Bounds()
	tmp := image.NewGray(bounds)
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum, weight := 0, 0
			for k := -2; k <= 2; k++ {
				xi := x + k
				if xi < bounds.Min.X || xi >= bounds.Max.X {
					continue
				}
				sum += int(img.GrayAt(xi, y).Y) * kernel[k+2]
				weight += kernel[k+2]
			}
			tmp.SetGray(x, y, grayVal(sum, weight))
		}
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			sum, weight := 0, 0
			for k := -2; k <= 2; k++ {
				yi := y + k
				if yi < bounds.Min.Y || yi >= bounds.Max.Y {
					continue
				}
				sum += int(tmp.GrayAt(x, yi).Y) * kernel[k+2]
				weight += kernel[k+2]
			}
			out.SetGray(x, y, grayVal(sum, weight))
		}
	}
	return out
}

func grayVal(sum, weight int) color.Gray {
	if weight == 0 {
		return color.Gray{}
	}
	return color.Gray{Y: uint8((sum + weight/2) / weight)}
}
