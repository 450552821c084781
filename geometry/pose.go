// Package geometry verifies tentative loop closures: descriptor crosscheck
// matching followed by an epipolar test (mono) or a perspective pose
// estimation (stereo), both under robust estimators.
package geometry

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a rigid transform between two camera frames, stored as a 3x3
// rotation and a 3x1 translation.
type Pose struct {
	Rotation    *mat.Dense
	Translation *mat.Dense
}

// NewPose returns a pose from a rotation and a translation matrix.
func NewPose(rotation, translation *mat.Dense) *Pose {
	return &Pose{Rotation: rotation, Translation: translation}
}

// IdentityPose returns the identity transform.
func IdentityPose() *Pose {
	return &Pose{Rotation: eye(3), Translation: mat.NewDense(3, 1, nil)}
}

// IsIdentity reports whether the pose is (numerically) the identity transform.
func (p *Pose) IsIdentity() bool {
	const eps = 1e-12
	for i := 0; i < 3; i++ {
		if diff := p.Translation.At(i, 0); diff > eps || diff < -eps {
			return false
		}
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if diff := p.Rotation.At(i, j) - want; diff > eps || diff < -eps {
				return false
			}
		}
	}
	return true
}

// TranslationVector returns the translation as an r3.Vector.
func (p *Pose) TranslationVector() r3.Vector {
	return r3.Vector{
		X: p.Translation.At(0, 0),
		Y: p.Translation.At(1, 0),
		Z: p.Translation.At(2, 0),
	}
}

// Apply transforms a 3D point by the pose.
func (p *Pose) Apply(pt r3.Vector) r3.Vector {
	r := p.Rotation
	t := p.Translation
	return r3.Vector{
		X: r.At(0, 0)*pt.X + r.At(0, 1)*pt.Y + r.At(0, 2)*pt.Z + t.At(0, 0),
		Y: r.At(1, 0)*pt.X + r.At(1, 1)*pt.Y + r.At(1, 2)*pt.Z + t.At(1, 0),
		Z: r.At(2, 0)*pt.X + r.At(2, 1)*pt.Y + r.At(2, 2)*pt.Z + t.At(2, 0),
	}
}
