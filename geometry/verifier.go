package geometry

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ajaycharan/libhaloc/observation"
	"github.com/ajaycharan/libhaloc/store"
)

// DefaultRANSACIterations is the iteration budget of the robust estimators.
const DefaultRANSACIterations = 100

// VerifierParams tunes the geometric consistency test.
type VerifierParams struct {
	// DescThresh is the maximum descriptor distance for a crosscheck match.
	DescThresh float64 `json:"desc_thresh"`
	// EpipolarThresh is the Sampson-distance threshold (pixels) for an
	// epipolar inlier.
	EpipolarThresh float64 `json:"epipolar_thresh"`
	// MaxReprojErr is the reprojection-error threshold (pixels) for a pose
	// inlier.
	MaxReprojErr float64 `json:"max_reproj_err"`
	// MinMatches is the minimum crosscheck match count to attempt geometry.
	MinMatches int `json:"min_matches"`
	// MinInliers is the minimum robust-estimator inlier count to accept.
	MinInliers int `json:"min_inliers"`
	// RANSACIterations caps the robust estimators; 0 means the default.
	RANSACIterations int `json:"ransac_iterations"`
	// RANSACSeed makes repeated verifications of the same pair reproducible.
	RANSACSeed int64 `json:"ransac_seed"`
}

// Verification is the outcome of checking one candidate pair.
type Verification struct {
	Accepted bool
	Matches  int
	Inliers  int
	// Transform is the estimated rigid transform for accepted stereo pairs
	// and identity otherwise.
	Transform *Pose
}

// Verifier decides whether two observations see the same place. Rejection is
// a normal outcome; only store inconsistencies and misconfiguration are
// errors.
type Verifier struct {
	params VerifierParams
	store  store.Store
	camera *mat.Dense
	logger golog.Logger
}

// NewVerifier returns a verifier that reads candidate records from st.
func NewVerifier(params VerifierParams, st store.Store, logger golog.Logger) *Verifier {
	if params.RANSACIterations <= 0 {
		params.RANSACIterations = DefaultRANSACIterations
	}
	return &Verifier{params: params, store: st, logger: logger}
}

// SetCameraMatrix sets the pinhole intrinsics needed for stereo pose
// estimation.
func (v *Verifier) SetCameraMatrix(k *mat.Dense) {
	v.camera = k
}

// Verify checks the reference observation against the candidate stored under
// candidateIndex. A missing or corrupt record is a hard error: the table only
// ranks indices the session has persisted, so a failed read means the store
// and the table disagree.
func (v *Verifier) Verify(ref *observation.Observation, candidateIndex int) (Verification, error) {
	rejected := Verification{Transform: IdentityPose()}

	cand, err := v.store.Get(candidateIndex)
	if err != nil {
		return rejected, errors.Wrapf(err, "verifying against candidate %d", candidateIndex)
	}

	matches := CrossCheckMatch(ref.Descriptors, cand.Descriptors, v.params.DescThresh)
	rejected.Matches = len(matches)
	if len(matches) < v.params.MinMatches {
		v.logger.Debugw("candidate rejected on matches",
			"candidate", candidateIndex, "matches", len(matches))
		return rejected, nil
	}

	refPts := make([]r2.Point, len(matches))
	candPts := make([]r2.Point, len(matches))
	for i, m := range matches {
		refPts[i] = ref.KeyPoints[m.Ref]
		candPts[i] = cand.KeyPoints[m.Cand]
	}

	if !ref.Stereo() {
		return v.verifyMono(rejected, candidateIndex, refPts, candPts)
	}
	refPts3D := make([]r3.Vector, len(matches))
	for i, m := range matches {
		refPts3D[i] = ref.Points3D[m.Ref]
	}
	return v.verifyStereo(rejected, candidateIndex, refPts3D, candPts)
}

// verifyMono checks the epipolar geometry of the matched 2D points.
func (v *Verifier) verifyMono(result Verification, candidateIndex int,
	refPts, candPts []r2.Point,
) (Verification, error) {
	f, mask, err := EstimateFundamentalMatrixRANSAC(refPts, candPts,
		v.params.EpipolarThresh, v.params.RANSACIterations, v.params.RANSACSeed)
	if err != nil {
		return result, errors.Wrapf(err, "verifying against candidate %d", candidateIndex)
	}
	if f == nil {
		v.logger.Debugw("candidate rejected on degenerate epipolar geometry",
			"candidate", candidateIndex)
		return result, nil
	}
	inliers := 0
	for _, ok := range mask {
		if ok {
			inliers++
		}
	}
	result.Inliers = inliers
	if inliers < v.params.MinInliers {
		v.logger.Debugw("candidate rejected on epipolar inliers",
			"candidate", candidateIndex, "inliers", inliers)
		return result, nil
	}
	// mono recovers no absolute pose; the transform stays identity
	result.Accepted = true
	return result, nil
}

// verifyStereo estimates the pose of the candidate's matched 2D points
// against the reference's 3D points.
func (v *Verifier) verifyStereo(result Verification, candidateIndex int,
	refPts3D []r3.Vector, candPts []r2.Point,
) (Verification, error) {
	if v.camera == nil {
		return result, errors.New("stereo verification requires a camera matrix")
	}
	pose, mask, err := SolvePnPRANSAC(refPts3D, candPts, v.camera,
		v.params.MaxReprojErr, v.params.RANSACIterations, v.params.RANSACSeed)
	if err != nil {
		return result, errors.Wrapf(err, "verifying against candidate %d", candidateIndex)
	}
	if pose == nil {
		v.logger.Debugw("candidate rejected on degenerate pose",
			"candidate", candidateIndex)
		return result, nil
	}
	inliers := 0
	for _, ok := range mask {
		if ok {
			inliers++
		}
	}
	result.Inliers = inliers
	if inliers < v.params.MinInliers {
		v.logger.Debugw("candidate rejected on pose inliers",
			"candidate", candidateIndex, "inliers", inliers)
		return result, nil
	}
	result.Accepted = true
	result.Transform = pose
	return result, nil
}
