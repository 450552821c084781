package haloc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	uts "go.viam.com/utils"

	"github.com/ajaycharan/libhaloc/geometry"
	"github.com/ajaycharan/libhaloc/hash"
)

// Default parameter values. WorkDir has no default: it is the one required
// field.
const (
	DefaultDescType       = "SIFT"
	DefaultNumProjections = hash.DefaultNumProjections
	DefaultDescThresh     = 0.8
	DefaultEpipolarThresh = 2.0
	DefaultMinNeighbour   = 10
	DefaultNCandidates    = 2
	DefaultMinMatches     = 20
	DefaultMinInliers     = 12
	DefaultMaxReprojErr   = 3.0
)

// Params is the configuration surface of a loop closure session. It is
// immutable after the session is created.
type Params struct {
	// WorkDir is the directory that backs the observation store. Required.
	WorkDir string `json:"work_dir"`
	// DescType names the descriptor family the provider computes. It is a
	// tag recorded for bookkeeping; the pipeline treats all float
	// descriptors alike.
	DescType string `json:"desc_type"`
	// NumProjections is the length of the hash vectors.
	NumProjections int `json:"num_proj"`
	// DescThresh is the descriptor distance threshold for crosscheck matching.
	DescThresh float64 `json:"desc_thresh"`
	// EpipolarThresh is the epipolar inlier threshold in pixels.
	EpipolarThresh float64 `json:"epipolar_thresh"`
	// MinNeighbour is the minimum temporal gap before a past observation is
	// eligible as a candidate.
	MinNeighbour int `json:"min_neighbour"`
	// NCandidates is how many top-ranked candidates to verify per query.
	NCandidates int `json:"n_candidates"`
	// MinMatches is the minimum crosscheck match count.
	MinMatches int `json:"min_matches"`
	// MinInliers is the minimum robust-estimator inlier count.
	MinInliers int `json:"min_inliers"`
	// MaxReprojErr is the reprojection-error threshold in pixels for stereo
	// pose estimation.
	MaxReprojErr float64 `json:"max_reproj_err"`
	// CrossValidate enables the two-sided temporal cross-check of accepted
	// candidates.
	CrossValidate bool `json:"validate"`
	// RANSACIterations caps the robust estimators; 0 means the default.
	RANSACIterations int `json:"ransac_iterations"`
	// RANSACSeed seeds the robust estimators so repeated verifications of
	// the same pair agree.
	RANSACSeed int64 `json:"ransac_seed"`
}

// DefaultParams returns Params with every field except WorkDir defaulted.
func DefaultParams() Params {
	return Params{
		DescType:         DefaultDescType,
		NumProjections:   DefaultNumProjections,
		DescThresh:       DefaultDescThresh,
		EpipolarThresh:   DefaultEpipolarThresh,
		MinNeighbour:     DefaultMinNeighbour,
		NCandidates:      DefaultNCandidates,
		MinMatches:       DefaultMinMatches,
		MinInliers:       DefaultMinInliers,
		MaxReprojErr:     DefaultMaxReprojErr,
		RANSACIterations: geometry.DefaultRANSACIterations,
	}
}

// LoadParams loads Params from a json file, applying defaults for absent
// fields.
func LoadParams(path string) (Params, error) {
	params := DefaultParams()
	configFile, err := os.Open(filepath.Clean(path))
	if err != nil {
		return params, errors.Wrap(err, "cannot open config")
	}
	defer uts.UncheckedErrorFunc(configFile.Close)
	if err := json.NewDecoder(configFile).Decode(&params); err != nil {
		return params, errors.Wrap(err, "cannot decode config")
	}
	return params, nil
}

// Validate checks the parameters a session cannot start without.
func (p Params) Validate() error {
	if p.WorkDir == "" {
		return errors.New("work_dir is required")
	}
	if p.NumProjections <= 0 {
		return errors.New("num_proj must be positive")
	}
	if p.MinNeighbour < 1 {
		return errors.New("min_neighbour must be at least 1")
	}
	if p.NCandidates < 1 {
		return errors.New("n_candidates must be at least 1")
	}
	if p.DescThresh <= 0 || p.EpipolarThresh <= 0 || p.MaxReprojErr <= 0 {
		return errors.New("distance thresholds must be positive")
	}
	if p.MinMatches < 1 || p.MinInliers < 1 {
		return errors.New("min_matches and min_inliers must be at least 1")
	}
	return nil
}

func (p Params) verifierParams() geometry.VerifierParams {
	return geometry.VerifierParams{
		DescThresh:       p.DescThresh,
		EpipolarThresh:   p.EpipolarThresh,
		MaxReprojErr:     p.MaxReprojErr,
		MinMatches:       p.MinMatches,
		MinInliers:       p.MinInliers,
		RANSACIterations: p.RANSACIterations,
		RANSACSeed:       p.RANSACSeed,
	}
}
