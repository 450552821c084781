package geometry

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

func TestCrossCheckMatchIdenticalSets(t *testing.T) {
	desc := randomDescriptors(20, 32, 1)
	matches := CrossCheckMatch(desc, desc, 0.5)
	test.That(t, len(matches), test.ShouldEqual, 20)
	for _, m := range matches {
		test.That(t, m.Ref, test.ShouldEqual, m.Cand)
	}
}

func TestCrossCheckMatchShuffled(t *testing.T) {
	desc := randomDescriptors(15, 32, 2)
	shuffled := make(observation.Descriptors, len(desc))
	perm := rand.New(rand.NewSource(3)).Perm(len(desc))
	for i, p := range perm {
		shuffled[p] = desc[i]
	}
	matches := CrossCheckMatch(desc, shuffled, 0.5)
	test.That(t, len(matches), test.ShouldEqual, len(desc))
	for _, m := range matches {
		test.That(t, m.Cand, test.ShouldEqual, perm[m.Ref])
	}
}

func TestCrossCheckMatchThreshold(t *testing.T) {
	// two unrelated random sets in 32 dimensions sit far apart; a tight
	// threshold keeps none of them
	d1 := randomDescriptors(10, 32, 4)
	d2 := randomDescriptors(10, 32, 5)
	matches := CrossCheckMatch(d1, d2, 0.1)
	test.That(t, len(matches), test.ShouldEqual, 0)
}

func TestCrossCheckMatchSorted(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	base := randomDescriptors(12, 16, 7)
	noisy := make(observation.Descriptors, len(base))
	for i, d := range base {
		n := make([]float64, len(d))
		for j := range n {
			n[j] = d[j] + 0.01*r.Float64()
		}
		noisy[i] = n
	}
	matches := CrossCheckMatch(base, noisy, 1.0)
	test.That(t, len(matches), test.ShouldEqual, len(base))
	prev := -1.0
	for _, m := range matches {
		d := 0.0
		for j := range base[m.Ref] {
			diff := base[m.Ref][j] - noisy[m.Cand][j]
			d += diff * diff
		}
		test.That(t, d, test.ShouldBeGreaterThanOrEqualTo, prev)
		prev = d
	}
}

func TestCrossCheckMatchDegenerateInputs(t *testing.T) {
	desc := randomDescriptors(5, 8, 8)
	test.That(t, CrossCheckMatch(nil, desc, 1.0), test.ShouldBeNil)
	test.That(t, CrossCheckMatch(desc, nil, 1.0), test.ShouldBeNil)
	test.That(t, CrossCheckMatch(desc, randomDescriptors(5, 4, 9), 1.0), test.ShouldBeNil)
}
