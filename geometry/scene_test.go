package geometry

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// testCameraMatrix is the pinhole intrinsics shared by the synthetic scenes.
func testCameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		500, 0, 320,
		0, 500, 240,
		0, 0, 1,
	})
}

// testPose is a small rotation about Y plus a lateral translation, a typical
// revisit of the same place from a slightly different viewpoint.
func testPose() *Pose {
	angle := 5 * math.Pi / 180
	rotation := mat.NewDense(3, 3, []float64{
		math.Cos(angle), 0, math.Sin(angle),
		0, 1, 0,
		-math.Sin(angle), 0, math.Cos(angle),
	})
	translation := mat.NewDense(3, 1, []float64{0.3, 0.05, 0.1})
	return NewPose(rotation, translation)
}

// project maps a camera-frame point to pixels.
func project(pt r3.Vector, k *mat.Dense) r2.Point {
	return r2.Point{
		X: k.At(0, 0)*pt.X/pt.Z + k.At(0, 2),
		Y: k.At(1, 1)*pt.Y/pt.Z + k.At(1, 2),
	}
}

// syntheticScene builds n 3D points in front of a camera at the origin and
// projects them into that camera (ptsA) and into a second viewpoint at
// testPose (ptsB).
func syntheticScene(n int, seed int64) (pts3d []r3.Vector, ptsA, ptsB []r2.Point) {
	r := rand.New(rand.NewSource(seed))
	k := testCameraMatrix()
	pose := testPose()
	pts3d = make([]r3.Vector, n)
	ptsA = make([]r2.Point, n)
	ptsB = make([]r2.Point, n)
	for i := 0; i < n; i++ {
		p := r3.Vector{
			X: 4*r.Float64() - 2,
			Y: 3*r.Float64() - 1.5,
			Z: 4 + 4*r.Float64(),
		}
		pts3d[i] = p
		ptsA[i] = project(p, k)
		ptsB[i] = project(pose.Apply(p), k)
	}
	return pts3d, ptsA, ptsB
}
