// Package hash implements the random-projection hash used to screen loop
// closure candidates. An observation's descriptor set of any size is collapsed
// into a fixed-length vector, so comparing two observations costs O(1) instead
// of a full descriptor-to-descriptor matching.
package hash

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/ajaycharan/libhaloc/observation"
)

// DefaultNumProjections is the default size of the projection basis.
const DefaultNumProjections = 3

// Params configures the hash engine.
type Params struct {
	NumProjections int `json:"num_proj"`
}

// Engine owns a projection basis sized to the descriptor dimensionality seen
// at initialization. The basis is fixed for the remainder of the session, so
// hashes from the same engine are comparable with Match.
type Engine struct {
	params      Params
	dim         int
	basis       [][]float64
	initialized bool
}

// NewEngine returns an uninitialized engine. The basis is seeded lazily by
// Initialize because the descriptor dimensionality is only known once the
// first observation arrives.
func NewEngine(params Params) *Engine {
	if params.NumProjections <= 0 {
		params.NumProjections = DefaultNumProjections
	}
	return &Engine{params: params}
}

// Initialized reports whether the projection basis has been seeded.
func (e *Engine) Initialized() bool {
	return e.initialized
}

// Initialize seeds the projection basis from the dimensionality of the given
// descriptor set. Calling it again replaces the basis, which invalidates any
// previously computed hash.
func (e *Engine) Initialize(desc observation.Descriptors) error {
	dim := desc.Dim()
	if dim == 0 {
		return errors.New("cannot initialize hash engine from an empty descriptor set")
	}
	e.dim = dim
	e.basis = make([][]float64, e.params.NumProjections)
	for i := range e.basis {
		e.basis[i] = randomUnitVector(dim, int64(i))
	}
	e.initialized = true
	return nil
}

// Hash maps a descriptor set to a vector of length NumProjections: the
// column-wise mean descriptor (centroid) is projected onto every basis
// vector. The centroid makes the hash independent of the descriptor count,
// and the fixed basis makes it deterministic.
func (e *Engine) Hash(desc observation.Descriptors) ([]float64, error) {
	if !e.initialized {
		return nil, errors.New("hash engine is not initialized")
	}
	if len(desc) == 0 {
		return nil, errors.New("cannot hash an empty descriptor set")
	}
	if desc.Dim() != e.dim {
		return nil, errors.Errorf("descriptor dimension %d does not match basis dimension %d",
			desc.Dim(), e.dim)
	}
	centroid := make([]float64, e.dim)
	for _, d := range desc {
		floats.Add(centroid, d)
	}
	floats.Scale(1/float64(len(desc)), centroid)

	h := make([]float64, len(e.basis))
	for i, b := range e.basis {
		h[i] = floats.Dot(b, centroid)
	}
	return h, nil
}

// Match returns the L1 distance between two hash vectors. Lower means more
// similar; the distance is symmetric and non-negative.
func (e *Engine) Match(h1, h2 []float64) (float64, error) {
	if len(h1) != len(h2) {
		return -1, errors.Errorf("hash lengths differ: %d vs %d", len(h1), len(h2))
	}
	d := 0.0
	for i := range h1 {
		d += math.Abs(h1[i] - h2[i])
	}
	return d, nil
}

// randomUnitVector draws a vector of the given size from the seeded source
// and normalizes it. The seed is the projection index, so the basis depends
// only on (dimension, projection count).
func randomUnitVector(size int, seed int64) []float64 {
	//nolint:gosec // reproducible basis, not cryptographic material
	r := rand.New(rand.NewSource(seed))
	v := make([]float64, size)
	for i := range v {
		v[i] = r.Float64() - 0.5
	}
	norm := floats.Norm(v, 2)
	if norm > 0 {
		floats.Scale(1/norm, v)
	}
	return v
}
