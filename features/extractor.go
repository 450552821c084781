package features

import (
	"image"
	"image/draw"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"github.com/ajaycharan/libhaloc/observation"
)

// Config bundles the detector and descriptor settings of the extractor.
type Config struct {
	FAST  FASTConfig  `json:"fast"`
	BRIEF BRIEFConfig `json:"brief"`
	// MaxKeypoints caps the number of keypoints per image, keeping the
	// strongest corners; 0 means no cap.
	MaxKeypoints int `json:"max_keypoints"`
}

// DefaultConfig returns the default extractor configuration.
func DefaultConfig() Config {
	return Config{FAST: DefaultFASTConfig(), BRIEF: DefaultBRIEFConfig(), MaxKeypoints: 500}
}

// Extractor detects FAST corners and describes them with BRIEF. The sample
// pair layout is generated once at construction, so every image in a session
// is described consistently.
type Extractor struct {
	cfg   Config
	pairs *SamplePairs
}

// NewExtractor builds an extractor from the config.
func NewExtractor(cfg Config) *Extractor {
	if cfg.BRIEF.N <= 0 {
		cfg.BRIEF = DefaultBRIEFConfig()
	}
	return &Extractor{cfg: cfg, pairs: GenerateSamplePairs(cfg.BRIEF)}
}

// Extract computes keypoints and descriptors for a single image.
func (e *Extractor) Extract(img image.Image) (observation.KeyPoints, observation.Descriptors, error) {
	gray := makeGray(img)
	corners := DetectFAST(gray, e.cfg.FAST)
	if len(corners) == 0 {
		return nil, nil, errors.New("no corners detected")
	}
	if e.cfg.MaxKeypoints > 0 && len(corners) > e.cfg.MaxKeypoints {
		corners = corners[:e.cfg.MaxKeypoints]
	}
	descs := ComputeBRIEFDescriptors(gray, e.pairs, corners, e.cfg.BRIEF)
	kps := make(observation.KeyPoints, len(corners))
	for i, c := range corners {
		kps[i] = r2.Point{X: float64(c.X), Y: float64(c.Y)}
	}
	return kps, descs, nil
}

// makeGray converts any image to 8-bit grayscale.
func makeGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
	return gray
}
