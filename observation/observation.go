// Package observation contains the data model for a single camera observation:
// its keypoints, descriptors and, for stereo rigs, the triangulated 3D points.
package observation

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type (
	// KeyPoints is a set of 2D image locations, one per descriptor.
	KeyPoints []r2.Point
	// Descriptors is a set of fixed-dimension feature vectors, one row per keypoint.
	Descriptors [][]float64
)

// Dim returns the dimensionality of the descriptors, 0 if there are none.
func (d Descriptors) Dim() int {
	if len(d) == 0 {
		return 0
	}
	return len(d[0])
}

// Mat returns the descriptors as a dense matrix with one descriptor per row.
func (d Descriptors) Mat() *mat.Dense {
	if len(d) == 0 {
		return nil
	}
	m := mat.NewDense(len(d), d.Dim(), nil)
	for i, row := range d {
		m.SetRow(i, row)
	}
	return m
}

// Observation is one ingested camera frame (or stereo pair). The sequence
// index is assigned at ingestion and never reused. Points3D is empty for mono
// observations and has one entry per keypoint for stereo ones.
type Observation struct {
	Index       int         `json:"index"`
	Name        string      `json:"name"`
	KeyPoints   KeyPoints   `json:"kp"`
	Descriptors Descriptors `json:"desc"`
	Points3D    []r3.Vector `json:"threed,omitempty"`
}

// Stereo reports whether the observation carries triangulated 3D points.
func (o *Observation) Stereo() bool {
	return len(o.Points3D) > 0
}

// Validate checks the structural invariants of the observation.
func (o *Observation) Validate() error {
	if len(o.Descriptors) == 0 {
		return errors.New("observation has no descriptors")
	}
	if len(o.Descriptors) != len(o.KeyPoints) {
		return errors.Errorf("observation has %d descriptors but %d keypoints",
			len(o.Descriptors), len(o.KeyPoints))
	}
	if len(o.Points3D) != 0 && len(o.Points3D) != len(o.KeyPoints) {
		return errors.Errorf("observation has %d 3D points but %d keypoints",
			len(o.Points3D), len(o.KeyPoints))
	}
	dim := o.Descriptors.Dim()
	for i, d := range o.Descriptors {
		if len(d) != dim {
			return errors.Errorf("descriptor %d has dimension %d, expected %d", i, len(d), dim)
		}
	}
	return nil
}
