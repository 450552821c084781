package geometry

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ajaycharan/libhaloc/observation"
)

// Match pairs a descriptor index in the reference set with one in the
// candidate set.
type Match struct {
	Ref  int
	Cand int
}

// pairwiseDistances computes the Euclidean distance between every reference
// and candidate descriptor.
func pairwiseDistances(d1, d2 observation.Descriptors) *mat.Dense {
	distances := mat.NewDense(len(d1), len(d2), nil)
	diff := make([]float64, d1.Dim())
	for i := range d1 {
		for j := range d2 {
			floats.SubTo(diff, d1[i], d2[j])
			distances.Set(i, j, floats.Norm(diff, 2))
		}
	}
	return distances
}

// argMinPerRow returns, for each row, the column index with minimum value.
func argMinPerRow(distances *mat.Dense) []int {
	nRows, _ := distances.Dims()
	indices := make([]int, nRows)
	for i := 0; i < nRows; i++ {
		indices[i] = floats.MinIdx(mat.Row(nil, i, distances))
	}
	return indices
}

// CrossCheckMatch matches two descriptor sets with mutual nearest-neighbour
// crosscheck: descriptor i in the reference set matches its nearest candidate
// j only if i is also the nearest reference of j, and only if their distance
// is below maxDist. Matches are returned sorted by ascending distance.
func CrossCheckMatch(ref, cand observation.Descriptors, maxDist float64) []Match {
	if len(ref) == 0 || len(cand) == 0 || ref.Dim() != cand.Dim() {
		return nil
	}
	distances := pairwiseDistances(ref, cand)
	nearestCand := argMinPerRow(distances)
	// argmin per column via the transposed view
	distT := mat.DenseCopyOf(distances.T())
	nearestRef := argMinPerRow(distT)

	type scored struct {
		m Match
		d float64
	}
	kept := make([]scored, 0, len(ref))
	for i := range ref {
		j := nearestCand[i]
		if nearestRef[j] != i {
			continue
		}
		d := distances.At(i, j)
		if d >= maxDist {
			continue
		}
		kept = append(kept, scored{Match{Ref: i, Cand: j}, d})
	}
	// sort by distance, best first
	dists := make([]float64, len(kept))
	order := make([]int, len(kept))
	for i, s := range kept {
		dists[i] = s.d
	}
	floats.Argsort(dists, order)
	matches := make([]Match, len(kept))
	for i, idx := range order {
		matches[i] = kept[idx].m
	}
	return matches
}
