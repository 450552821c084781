package geometry

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minPnPPoints is the sample size of the DLT pose fit.
const minPnPPoints = 6

// SolvePnP estimates the camera pose from 3D points and their 2D projections
// with a direct linear transform: image points are moved to normalized camera
// coordinates with the intrinsics, the 3x4 projection is recovered as the
// null space of the stacked constraints, and the rotation block is
// orthonormalized by SVD.
func SolvePnP(pts3d []r3.Vector, pts2d []r2.Point, k *mat.Dense) (*Pose, error) {
	if len(pts3d) != len(pts2d) {
		return nil, errors.New("point sets must have the same number of elements")
	}
	if len(pts3d) < minPnPPoints {
		return nil, errors.Errorf("need at least %d correspondences, got %d",
			minPnPPoints, len(pts3d))
	}
	norm, err := normalizedCameraPoints(pts2d, k)
	if err != nil {
		return nil, err
	}

	n := len(pts3d)
	a := mat.NewDense(2*n, 12, nil)
	for i, p := range pts3d {
		x, y := norm[i].X, norm[i].Y
		a.SetRow(2*i, []float64{
			p.X, p.Y, p.Z, 1, 0, 0, 0, 0,
			-x * p.X, -x * p.Y, -x * p.Z, -x,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, 0, p.X, p.Y, p.Z, 1,
			-y * p.X, -y * p.Y, -y * p.Z, -y,
		})
	}
	mats, err := performSVD(a)
	if err != nil {
		return nil, err
	}
	lastCol := mats.V.ColView(11)
	p := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			p.Set(i, j, lastCol.AtVec(4*i+j))
		}
	}

	// put the scene in front of the camera
	positive := 0
	for _, pt := range pts3d {
		if p.At(2, 0)*pt.X+p.At(2, 1)*pt.Y+p.At(2, 2)*pt.Z+p.At(2, 3) > 0 {
			positive++
		}
	}
	if 2*positive < n {
		p.Scale(-1, p)
	}

	// orthonormalize the rotation block and rescale the translation
	rBlock := mat.DenseCopyOf(p.Slice(0, 3, 0, 3))
	rMats, err := performSVD(rBlock)
	if err != nil {
		return nil, err
	}
	rotation := mat.NewDense(3, 3, nil)
	rotation.Mul(rMats.U, rMats.VT)
	if mat.Det(rotation) < 0 {
		rotation.Scale(-1, rotation)
		p.Scale(-1, p)
	}
	scale := (rMats.S.At(0, 0) + rMats.S.At(1, 1) + rMats.S.At(2, 2)) / 3
	if scale < 1e-12 {
		return nil, errors.New("degenerate pose estimate")
	}
	translation := mat.NewDense(3, 1, []float64{
		p.At(0, 3) / scale,
		p.At(1, 3) / scale,
		p.At(2, 3) / scale,
	})
	return NewPose(rotation, translation), nil
}

// ReprojectionError returns the pixel distance between the observed point and
// the 3D point projected through the pose and intrinsics. Points behind the
// camera report an infinite error.
func ReprojectionError(pose *Pose, pt3d r3.Vector, observed r2.Point, k *mat.Dense) float64 {
	cam := pose.Apply(pt3d)
	if cam.Z <= 0 {
		return math.Inf(1)
	}
	fx, fy := k.At(0, 0), k.At(1, 1)
	cx, cy := k.At(0, 2), k.At(1, 2)
	u := fx*cam.X/cam.Z + cx
	v := fy*cam.Y/cam.Z + cy
	du := u - observed.X
	dv := v - observed.Y
	return math.Sqrt(du*du + dv*dv)
}

// SolvePnPRANSAC robustly estimates the camera pose from 3D-2D
// correspondences, scoring each minimal-sample fit by the number of points
// whose reprojection error stays below maxReprojErr pixels and refitting on
// the winning support. It returns the pose and the inlier mask; a nil pose
// with nil error means no acceptable model was found.
func SolvePnPRANSAC(pts3d []r3.Vector, pts2d []r2.Point, k *mat.Dense,
	maxReprojErr float64, iterations int, seed int64,
) (*Pose, []bool, error) {
	if len(pts3d) != len(pts2d) {
		return nil, nil, errors.New("point sets must have the same number of elements")
	}
	n := len(pts3d)
	if n < minPnPPoints {
		return nil, nil, nil
	}
	//nolint:gosec // reproducible estimation, not cryptographic material
	r := rand.New(rand.NewSource(seed))

	var bestMask []bool
	bestInliers := 0
	sample3d := make([]r3.Vector, minPnPPoints)
	sample2d := make([]r2.Point, minPnPPoints)
	for it := 0; it < iterations; it++ {
		for i := range sample3d {
			j := sampleRandomIntRange(0, n-1, r)
			sample3d[i] = pts3d[j]
			sample2d[i] = pts2d[j]
		}
		pose, err := SolvePnP(sample3d, sample2d, k)
		if err != nil {
			continue
		}
		mask := make([]bool, n)
		inliers := 0
		for i := range pts3d {
			if ReprojectionError(pose, pts3d[i], pts2d[i], k) < maxReprojErr {
				mask[i] = true
				inliers++
			}
		}
		if inliers > bestInliers {
			bestInliers = inliers
			bestMask = mask
		}
	}
	if bestInliers < minPnPPoints {
		return nil, nil, nil
	}

	in3d := make([]r3.Vector, 0, bestInliers)
	in2d := make([]r2.Point, 0, bestInliers)
	for i, ok := range bestMask {
		if ok {
			in3d = append(in3d, pts3d[i])
			in2d = append(in2d, pts2d[i])
		}
	}
	pose, err := SolvePnP(in3d, in2d, k)
	if err != nil {
		return nil, nil, nil
	}
	return pose, bestMask, nil
}

// normalizedCameraPoints maps pixel coordinates to normalized camera
// coordinates with the intrinsics matrix.
func normalizedCameraPoints(pts []r2.Point, k *mat.Dense) ([]r2.Point, error) {
	fx, fy := k.At(0, 0), k.At(1, 1)
	cx, cy := k.At(0, 2), k.At(1, 2)
	if fx == 0 || fy == 0 {
		return nil, errors.New("camera matrix has zero focal length")
	}
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = r2.Point{X: (pt.X - cx) / fx, Y: (pt.Y - cy) / fy}
	}
	return out, nil
}
