package geometry

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// minFundamentalPoints is the sample size of the 8-point algorithm.
const minFundamentalPoints = 8

// ComputeFundamentalMatrix estimates the fundamental matrix from all given
// correspondences with the normalized 8-point algorithm (Multiple View
// Geometry, Alg 11.1): build the constraint matrix, take the null space by
// SVD, enforce rank 2 and denormalize.
func ComputeFundamentalMatrix(pts1, pts2 []r2.Point) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("point sets must have the same number of elements")
	}
	if len(pts1) < minFundamentalPoints {
		return nil, errors.Errorf("need at least %d correspondences, got %d",
			minFundamentalPoints, len(pts1))
	}
	nPoints := len(pts1)

	points1, T1 := normalizePoints(pts1)
	points2, T2 := normalizePoints(pts2)

	m := mat.NewDense(nPoints, 9, nil)
	for i := range points1 {
		v1 := points1[i]
		v2 := points2[i]
		m.SetRow(i, []float64{
			v2.X * v1.X, v2.X * v1.Y, v2.X,
			v2.Y * v1.X, v2.Y * v1.Y, v2.Y,
			v1.X, v1.Y, 1,
		})
	}

	// null space of m
	mats1, err := performSVD(m)
	if err != nil {
		return nil, err
	}
	lastColV := mats1.V.ColView(8)
	fData := make([]float64, 9)
	for i := range fData {
		fData[i] = lastColV.AtVec(i)
	}
	f := mat.NewDense(3, 3, fData)

	// enforce rank 2 of F
	mats2, err := performSVD(f)
	if err != nil {
		return nil, err
	}
	s := mats2.S
	s.Set(2, 2, 0)
	fHat := mat.NewDense(3, 3, nil)
	fHat.Mul(mats2.U, s)
	f.Mul(fHat, mats2.VT)

	// denormalize: T2^T @ F @ T1
	f.Mul(transposeDense(T2), f)
	f.Mul(f, T1)

	if math.Abs(f.At(2, 2)) < 1e-12 {
		return nil, errors.New("degenerate fundamental matrix")
	}
	f.Scale(1/f.At(2, 2), f)
	return f, nil
}

// SampsonDistance returns the first-order geometric error of the
// correspondence (p1, p2) under the fundamental matrix f.
func SampsonDistance(f *mat.Dense, p1, p2 r2.Point) float64 {
	x1 := []float64{p1.X, p1.Y, 1}
	x2 := []float64{p2.X, p2.Y, 1}
	// l2 = F x1, l1 = F^T x2
	var l1, l2 [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			l2[i] += f.At(i, j) * x1[j]
			l1[i] += f.At(j, i) * x2[j]
		}
	}
	num := x2[0]*l2[0] + x2[1]*l2[1] + x2[2]*l2[2]
	den := l2[0]*l2[0] + l2[1]*l2[1] + l1[0]*l1[0] + l1[1]*l1[1]
	if den == 0 {
		return math.Inf(1)
	}
	return num * num / den
}

// EstimateFundamentalMatrixRANSAC robustly estimates the fundamental matrix.
// At each iteration a minimal sample of 8 correspondences is fit and scored
// by the number of correspondences whose Sampson distance stays below
// threshold squared pixels; the model with the most support wins and is refit
// on its inliers. The returned mask marks inlier correspondences. A nil
// matrix with a nil error means the estimation was degenerate and the pair
// should be rejected.
func EstimateFundamentalMatrixRANSAC(pts1, pts2 []r2.Point, threshold float64,
	iterations int, seed int64,
) (*mat.Dense, []bool, error) {
	if len(pts1) != len(pts2) {
		return nil, nil, errors.New("point sets must have the same number of elements")
	}
	nPoints := len(pts1)
	if nPoints < minFundamentalPoints {
		return nil, nil, nil
	}
	//nolint:gosec // reproducible estimation, not cryptographic material
	r := rand.New(rand.NewSource(seed))
	thresholdSq := threshold * threshold

	var bestMask []bool
	bestInliers := 0
	sample1 := make([]r2.Point, minFundamentalPoints)
	sample2 := make([]r2.Point, minFundamentalPoints)
	for it := 0; it < iterations; it++ {
		for i := range sample1 {
			k := sampleRandomIntRange(0, nPoints-1, r)
			sample1[i] = pts1[k]
			sample2[i] = pts2[k]
		}
		f, err := ComputeFundamentalMatrix(sample1, sample2)
		if err != nil {
			continue
		}
		mask := make([]bool, nPoints)
		inliers := 0
		for i := range pts1 {
			if SampsonDistance(f, pts1[i], pts2[i]) < thresholdSq {
				mask[i] = true
				inliers++
			}
		}
		if inliers > bestInliers {
			bestInliers = inliers
			bestMask = mask
		}
	}
	if bestInliers < minFundamentalPoints {
		return nil, nil, nil
	}

	// refit on the inliers of the best model
	in1 := make([]r2.Point, 0, bestInliers)
	in2 := make([]r2.Point, 0, bestInliers)
	for i, ok := range bestMask {
		if ok {
			in1 = append(in1, pts1[i])
			in2 = append(in2, pts2[i])
		}
	}
	f, err := ComputeFundamentalMatrix(in1, in2)
	if err != nil {
		return nil, nil, nil
	}
	// degenerate near-zero matrices reject the pair
	sum := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sum += math.Abs(f.At(i, j))
		}
	}
	if sum < 1e-3 {
		return nil, nil, nil
	}
	return f, bestMask, nil
}

// normalizePoints translates points to their centroid and scales them so the
// mean distance from the origin is sqrt(2), returning the transformed points
// and the 3x3 normalization transform.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	nPoints := len(pts)
	mu := r2.Point{}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1. / float64(nPoints))
	d := 0.0
	for _, pt := range pts {
		x2 := (pt.X - mu.X) * (pt.X - mu.X)
		y2 := (pt.Y - mu.Y) * (pt.Y - mu.Y)
		d += math.Sqrt(x2+y2) / float64(nPoints)
	}
	if d == 0 {
		d = 1
	}
	scale := math.Sqrt(2) / d
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	transformed := make([]r2.Point, nPoints)
	for i := range transformed {
		transformed[i] = r2.Point{X: scale * (pts[i].X - mu.X), Y: scale * (pts[i].Y - mu.Y)}
	}
	return transformed, T
}

func sampleRandomIntRange(min, max int, r *rand.Rand) int {
	return r.Intn(max-min+1) + min
}

func transposeDense(m *mat.Dense) *mat.Dense {
	nRows, nCols := m.Dims()
	m2 := mat.NewDense(nCols, nRows, nil)
	m2.Copy(m.T())
	return m2
}

func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

type matsSVD struct {
	U  *mat.Dense
	V  *mat.Dense
	VT *mat.Dense
	S  *mat.Dense
}

func performSVD(inputMatrix *mat.Dense) (*matsSVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(inputMatrix, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize matrix")
	}
	u, v, vt := &mat.Dense{}, &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	vt.CloneFrom(v.T())
	singularValues := svd.Values(nil)
	s := &mat.Dense{}
	s.CloneFrom(mat.NewDiagDense(len(singularValues), singularValues))
	return &matsSVD{U: u, V: v, VT: vt, S: s}, nil
}
