package geometry

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestComputeFundamentalMatrix(t *testing.T) {
	_, ptsA, ptsB := syntheticScene(30, 1)

	f, err := ComputeFundamentalMatrix(ptsA, ptsB)
	test.That(t, err, test.ShouldBeNil)
	for i := range ptsA {
		test.That(t, SampsonDistance(f, ptsA[i], ptsB[i]), test.ShouldBeLessThan, 1e-6)
	}

	_, err = ComputeFundamentalMatrix(ptsA[:5], ptsB[:5])
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ComputeFundamentalMatrix(ptsA, ptsB[:10])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEstimateFundamentalMatrixRANSACCleanScene(t *testing.T) {
	_, ptsA, ptsB := syntheticScene(40, 2)

	f, mask, err := EstimateFundamentalMatrixRANSAC(ptsA, ptsB, 1.0, 200, 42)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldNotBeNil)
	inliers := 0
	for _, ok := range mask {
		if ok {
			inliers++
		}
	}
	test.That(t, inliers, test.ShouldEqual, len(ptsA))
}

func TestEstimateFundamentalMatrixRANSACWithOutliers(t *testing.T) {
	_, ptsA, ptsB := syntheticScene(50, 3)
	// corrupt a fifth of the correspondences
	r := rand.New(rand.NewSource(4))
	outliers := map[int]bool{}
	for len(outliers) < 10 {
		i := r.Intn(len(ptsB))
		if !outliers[i] {
			outliers[i] = true
			ptsB[i] = r2.Point{X: 640 * r.Float64(), Y: 480 * r.Float64()}
		}
	}

	f, mask, err := EstimateFundamentalMatrixRANSAC(ptsA, ptsB, 1.0, 500, 42)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldNotBeNil)
	inliers := 0
	for i, ok := range mask {
		if ok {
			inliers++
			test.That(t, outliers[i], test.ShouldBeFalse)
		}
	}
	test.That(t, inliers, test.ShouldEqual, len(ptsA)-len(outliers))
}

func TestEstimateFundamentalMatrixRANSACDeterminism(t *testing.T) {
	_, ptsA, ptsB := syntheticScene(40, 5)
	f1, mask1, err := EstimateFundamentalMatrixRANSAC(ptsA, ptsB, 1.0, 200, 7)
	test.That(t, err, test.ShouldBeNil)
	f2, mask2, err := EstimateFundamentalMatrixRANSAC(ptsA, ptsB, 1.0, 200, 7)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mask1, test.ShouldResemble, mask2)
	test.That(t, f1.RawMatrix().Data, test.ShouldResemble, f2.RawMatrix().Data)
}

func TestEstimateFundamentalMatrixRANSACTooFewPoints(t *testing.T) {
	// too few correspondences reject rather than error
	_, ptsA, ptsB := syntheticScene(4, 6)
	f, mask, err := EstimateFundamentalMatrixRANSAC(ptsA, ptsB, 1.0, 100, 42)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldBeNil)
	test.That(t, mask, test.ShouldBeNil)
}
