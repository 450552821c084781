// Package haloc detects loop closures in a sequential stream of camera
// observations. Each observation is reduced to a fixed-length hash used to
// rank all previously seen observations; the best-ranked candidates are then
// confirmed or rejected with epipolar (mono) or pose-estimation (stereo)
// constraints, optionally cross-checked against the candidate's temporal
// neighbours.
package haloc

import (
	"image"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/ajaycharan/libhaloc/geometry"
	"github.com/ajaycharan/libhaloc/hash"
	"github.com/ajaycharan/libhaloc/observation"
	"github.com/ajaycharan/libhaloc/store"
)

// FeatureExtractor computes keypoints and descriptors from a single image.
// Implementations must return one keypoint per descriptor.
type FeatureExtractor interface {
	Extract(img image.Image) (observation.KeyPoints, observation.Descriptors, error)
}

// StereoFeatureExtractor computes keypoints, descriptors and triangulated 3D
// points from a rectified stereo pair, one of each per feature.
type StereoFeatureExtractor interface {
	ExtractStereo(left, right image.Image) (observation.KeyPoints, observation.Descriptors, []r3.Vector, error)
}

// Candidate is a past observation proposed as a loop closure match, scored by
// hash dissimilarity (lower is better).
type Candidate struct {
	Index int
	Score float64
}

// Result is the verdict of a loop closure query.
type Result struct {
	// Valid reports whether a loop closure was found and verified.
	Valid bool
	// MatchedIndex is the sequence index of the matched observation, -1 if
	// none.
	MatchedIndex int
	// MatchedName is the name of the matched observation, empty if none.
	MatchedName string
	// Transform is the rigid transform to the matched observation for
	// accepted stereo closures and identity otherwise.
	Transform *geometry.Pose
}

func noClosure() Result {
	return Result{MatchedIndex: -1, Transform: geometry.IdentityPose()}
}

// verifier is the geometric check the candidate loop runs; a seam for tests
// to exercise the orchestrator branches with scripted outcomes.
type verifier interface {
	Verify(ref *observation.Observation, candidateIndex int) (geometry.Verification, error)
}

type tableEntry struct {
	index int
	hash  []float64
}

// LoopClosure owns one loop closure session: the projection basis, the
// append-only hash table, the running index counter and the observation
// store. It is not safe for concurrent use; observations are ingested
// strictly one at a time.
type LoopClosure struct {
	params    Params
	logger    golog.Logger
	engine    *hash.Engine
	store     store.Store
	verifier  verifier
	geomVer   *geometry.Verifier
	extractor FeatureExtractor
	stereoEx  StereoFeatureExtractor

	table      []tableEntry
	nextIndex  int
	last       *observation.Observation
	lastHashed int
}

// New creates a session backed by a file store in a fresh directory under
// params.WorkDir. Finalize removes that directory.
func New(params Params, logger golog.Logger) (*LoopClosure, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid loop closure parameters")
	}
	st, err := store.NewFileStore(params.WorkDir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create session store")
	}
	return NewWithStore(params, st, logger)
}

// NewWithStore creates a session backed by the given store. WorkDir is not
// consulted; every other parameter constraint still applies.
func NewWithStore(params Params, st store.Store, logger golog.Logger) (*LoopClosure, error) {
	if st == nil {
		return nil, errors.New("a store is required")
	}
	p := params
	p.WorkDir = "-" // satisfied by the injected store
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid loop closure parameters")
	}
	geomVer := geometry.NewVerifier(params.verifierParams(), st, logger)
	return &LoopClosure{
		params:     params,
		logger:     logger,
		engine:     hash.NewEngine(hash.Params{NumProjections: params.NumProjections}),
		store:      st,
		verifier:   geomVer,
		geomVer:    geomVer,
		lastHashed: -1,
	}, nil
}

// SetCameraMatrix sets the pinhole intrinsics required for stereo pose
// estimation.
func (lc *LoopClosure) SetCameraMatrix(k *mat.Dense) {
	lc.geomVer.SetCameraMatrix(k)
}

// SetExtractor sets the feature extractor used by Ingest.
func (lc *LoopClosure) SetExtractor(e FeatureExtractor) {
	lc.extractor = e
}

// SetStereoExtractor sets the extractor used by IngestStereo.
func (lc *LoopClosure) SetStereoExtractor(e StereoFeatureExtractor) {
	lc.stereoEx = e
}

// Ingest extracts features from a mono image and ingests them under the given
// name.
func (lc *LoopClosure) Ingest(img image.Image, name string) error {
	if lc.extractor == nil {
		return errors.New("no feature extractor configured")
	}
	kps, desc, err := lc.extractor.Extract(img)
	if err != nil {
		return errors.Wrapf(err, "extracting features for %q", name)
	}
	return lc.IngestFeatures(name, kps, desc, nil)
}

// IngestStereo extracts features from a rectified stereo pair and ingests
// them under the given name.
func (lc *LoopClosure) IngestStereo(left, right image.Image, name string) error {
	if lc.stereoEx == nil {
		return errors.New("no stereo feature extractor configured")
	}
	kps, desc, pts3d, err := lc.stereoEx.ExtractStereo(left, right)
	if err != nil {
		return errors.Wrapf(err, "extracting stereo features for %q", name)
	}
	return lc.IngestFeatures(name, kps, desc, pts3d)
}

// IngestFeatures persists an observation built from precomputed features and
// assigns it the next sequence index. pts3d is nil for mono observations.
func (lc *LoopClosure) IngestFeatures(name string, kps observation.KeyPoints,
	desc observation.Descriptors, pts3d []r3.Vector,
) error {
	obs := &observation.Observation{
		Index:       lc.nextIndex,
		Name:        name,
		KeyPoints:   kps,
		Descriptors: desc,
		Points3D:    pts3d,
	}
	if err := obs.Validate(); err != nil {
		return errors.Wrapf(err, "ingesting %q", name)
	}
	if err := lc.store.Put(obs); err != nil {
		return errors.Wrapf(err, "persisting %q", name)
	}
	lc.nextIndex++
	lc.last = obs
	return nil
}

// Query runs the loop closure protocol against the most recently ingested
// observation: hash it, rank every sufficiently old past observation and
// verify the best candidates in order. "No closure" is a normal result, not
// an error.
func (lc *LoopClosure) Query() (Result, error) {
	if lc.last == nil {
		return noClosure(), errors.New("no observation ingested")
	}

	// The first observation bootstraps the projection basis and produces no
	// query of its own; its hash still joins the table so it stays reachable
	// as a future candidate.
	bootstrap := !lc.engine.Initialized()
	if bootstrap {
		if err := lc.engine.Initialize(lc.last.Descriptors); err != nil {
			return noClosure(), errors.Wrap(err, "bootstrapping hash engine")
		}
	}

	// Append at most one table entry per observation, so repeated queries
	// cannot skew the history.
	if lc.lastHashed != lc.last.Index {
		h, err := lc.engine.Hash(lc.last.Descriptors)
		if err != nil {
			return noClosure(), errors.Wrapf(err, "hashing observation %d", lc.last.Index)
		}
		lc.table = append(lc.table, tableEntry{index: lc.last.Index, hash: h})
		lc.lastHashed = lc.last.Index
	}
	if bootstrap {
		return noClosure(), nil
	}

	// Too few past observations to trust a match.
	if len(lc.table)-1 <= lc.params.MinNeighbour {
		return noClosure(), nil
	}

	query := lc.table[len(lc.table)-1]
	candidates, err := lc.rankCandidates(query.hash)
	if err != nil {
		return noClosure(), err
	}

	for attempt, cand := range candidates {
		if attempt >= lc.params.NCandidates {
			break
		}
		v, err := lc.verifier.Verify(lc.last, cand.Index)
		if err != nil {
			return noClosure(), err
		}
		if !v.Accepted {
			continue
		}
		if lc.params.CrossValidate {
			ok, err := lc.crossValidate(cand.Index)
			if err != nil {
				return noClosure(), err
			}
			if !ok {
				lc.logger.Debugw("candidate failed temporal validation", "candidate", cand.Index)
				continue
			}
		}
		name := ""
		if rec, err := lc.store.Get(cand.Index); err == nil {
			name = rec.Name
		} else {
			return noClosure(), errors.Wrapf(err, "reading accepted candidate %d", cand.Index)
		}
		lc.logger.Debugw("loop closure found",
			"observation", lc.last.Index, "candidate", cand.Index,
			"matches", v.Matches, "inliers", v.Inliers)
		return Result{
			Valid:        true,
			MatchedIndex: cand.Index,
			MatchedName:  name,
			Transform:    v.Transform,
		}, nil
	}
	return noClosure(), nil
}

// rankCandidates scores the query hash against every table entry more than
// MinNeighbour steps older than the current observation and returns them best
// first. Ties break toward the earlier index.
func (lc *LoopClosure) rankCandidates(query []float64) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(lc.table))
	for _, entry := range lc.table {
		if lc.last.Index-entry.index <= lc.params.MinNeighbour {
			break
		}
		score, err := lc.engine.Match(query, entry.hash)
		if err != nil {
			return nil, errors.Wrapf(err, "scoring candidate %d", entry.index)
		}
		candidates = append(candidates, Candidate{Index: entry.index, Score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score < candidates[j].Score
		}
		return candidates[i].Index < candidates[j].Index
	})
	return candidates, nil
}

// crossValidate re-checks a tentative match against the candidate's immediate
// temporal neighbours: first the predecessor (clamped at 0), then the
// successor. Either succeeding validates the original candidate.
func (lc *LoopClosure) crossValidate(candidateIndex int) (bool, error) {
	prev := candidateIndex - 1
	if prev < 0 {
		prev = 0
	}
	v, err := lc.verifier.Verify(lc.last, prev)
	if err != nil {
		return false, err
	}
	if v.Accepted {
		return true, nil
	}
	v, err = lc.verifier.Verify(lc.last, candidateIndex+1)
	if err != nil {
		return false, err
	}
	return v.Accepted, nil
}

// TableSize returns the number of hash table entries in the session.
func (lc *LoopClosure) TableSize() int {
	return len(lc.table)
}

// Finalize destroys the session: the observation store and its backing
// records are discarded. The session is unusable afterwards.
func (lc *LoopClosure) Finalize() error {
	lc.table = nil
	lc.last = nil
	return lc.store.Destroy()
}
