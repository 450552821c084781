package hash

import (
	"math/rand"
	"testing"

	"go.viam.com/test"

	"github.com/ajaycharan/libhaloc/observation"
)

func randomDescriptors(n, dim int, seed int64) observation.Descriptors {
	r := rand.New(rand.NewSource(seed))
	descs := make(observation.Descriptors, n)
	for i := range descs {
		d := make([]float64, dim)
		for j := range d {
			d[j] = r.Float64()
		}
		descs[i] = d
	}
	return descs
}

func TestEngineLifecycle(t *testing.T) {
	e := NewEngine(Params{NumProjections: 8})
	test.That(t, e.Initialized(), test.ShouldBeFalse)

	_, err := e.Hash(randomDescriptors(10, 32, 0))
	test.That(t, err, test.ShouldNotBeNil)

	err = e.Initialize(randomDescriptors(10, 32, 0))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.Initialized(), test.ShouldBeTrue)

	err = e.Initialize(observation.Descriptors{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestHashFixedLength(t *testing.T) {
	e := NewEngine(Params{NumProjections: 5})
	err := e.Initialize(randomDescriptors(20, 16, 1))
	test.That(t, err, test.ShouldBeNil)

	// observations never have the same count of features; the hash length
	// must not depend on it
	for _, n := range []int{1, 7, 20, 153} {
		h, err := e.Hash(randomDescriptors(n, 16, int64(n)))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, len(h), test.ShouldEqual, 5)
	}
}

func TestHashDeterminism(t *testing.T) {
	e := NewEngine(Params{NumProjections: 6})
	err := e.Initialize(randomDescriptors(15, 24, 2))
	test.That(t, err, test.ShouldBeNil)

	desc := randomDescriptors(40, 24, 3)
	h1, err := e.Hash(desc)
	test.That(t, err, test.ShouldBeNil)
	h2, err := e.Hash(desc)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h1, test.ShouldResemble, h2)

	// a second engine with the same configuration builds the same basis
	e2 := NewEngine(Params{NumProjections: 6})
	err = e2.Initialize(randomDescriptors(9, 24, 4))
	test.That(t, err, test.ShouldBeNil)
	h3, err := e2.Hash(desc)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, h3, test.ShouldResemble, h1)
}

func TestHashDimensionMismatch(t *testing.T) {
	e := NewEngine(Params{NumProjections: 4})
	err := e.Initialize(randomDescriptors(10, 32, 5))
	test.That(t, err, test.ShouldBeNil)

	_, err = e.Hash(randomDescriptors(10, 16, 6))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMatch(t *testing.T) {
	e := NewEngine(Params{NumProjections: 3})
	err := e.Initialize(randomDescriptors(10, 8, 7))
	test.That(t, err, test.ShouldBeNil)

	h1, err := e.Hash(randomDescriptors(12, 8, 8))
	test.That(t, err, test.ShouldBeNil)
	h2, err := e.Hash(randomDescriptors(30, 8, 9))
	test.That(t, err, test.ShouldBeNil)

	same, err := e.Match(h1, h1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, same, test.ShouldEqual, 0.0)

	d12, err := e.Match(h1, h2)
	test.That(t, err, test.ShouldBeNil)
	d21, err := e.Match(h2, h1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d12, test.ShouldBeGreaterThan, 0.0)
	test.That(t, d12, test.ShouldEqual, d21)

	_, err = e.Match(h1, h1[:2])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDefaultProjections(t *testing.T) {
	e := NewEngine(Params{})
	err := e.Initialize(randomDescriptors(5, 4, 10))
	test.That(t, err, test.ShouldBeNil)
	h, err := e.Hash(randomDescriptors(5, 4, 11))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(h), test.ShouldEqual, DefaultNumProjections)
}
