package observation

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestValidate(t *testing.T) {
	obs := &Observation{
		Index:       0,
		Name:        "frame0",
		KeyPoints:   KeyPoints{{X: 1, Y: 2}, {X: 3, Y: 4}},
		Descriptors: Descriptors{{0, 1}, {1, 0}},
	}
	test.That(t, obs.Validate(), test.ShouldBeNil)
	test.That(t, obs.Stereo(), test.ShouldBeFalse)

	obs.Points3D = []r3.Vector{{X: 1, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 2}}
	test.That(t, obs.Validate(), test.ShouldBeNil)
	test.That(t, obs.Stereo(), test.ShouldBeTrue)

	obs.Points3D = obs.Points3D[:1]
	test.That(t, obs.Validate(), test.ShouldNotBeNil)

	obs.Points3D = nil
	obs.KeyPoints = append(obs.KeyPoints, r2.Point{X: 5, Y: 6})
	test.That(t, obs.Validate(), test.ShouldNotBeNil)

	empty := &Observation{Name: "empty"}
	test.That(t, empty.Validate(), test.ShouldNotBeNil)

	ragged := &Observation{
		Name:        "ragged",
		KeyPoints:   KeyPoints{{X: 1, Y: 2}, {X: 3, Y: 4}},
		Descriptors: Descriptors{{0, 1}, {1, 0, 0}},
	}
	test.That(t, ragged.Validate(), test.ShouldNotBeNil)
}

func TestDescriptorsMat(t *testing.T) {
	d := Descriptors{{1, 2, 3}, {4, 5, 6}}
	test.That(t, d.Dim(), test.ShouldEqual, 3)
	m := d.Mat()
	rows, cols := m.Dims()
	test.That(t, rows, test.ShouldEqual, 2)
	test.That(t, cols, test.ShouldEqual, 3)
	test.That(t, m.At(1, 2), test.ShouldEqual, 6.0)

	test.That(t, Descriptors{}.Dim(), test.ShouldEqual, 0)
	test.That(t, Descriptors{}.Mat(), test.ShouldBeNil)
}
