package store

import (
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ajaycharan/libhaloc/observation"
)

// MemoryStore is an in-memory Store used in tests and by callers that do not
// need durable records.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int]*observation.Observation
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int]*observation.Observation)}
}

// Put stores a copy of the observation under its index.
func (s *MemoryStore) Put(obs *observation.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[obs.Index] = cloneObservation(obs)
	return nil
}

// Get retrieves a copy of the observation stored under idx.
func (s *MemoryStore) Get(idx int) (*observation.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.records[idx]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "record %d", idx)
	}
	return cloneObservation(obs), nil
}

// cloneObservation copies the record down to the slice level, so neither the
// caller nor the store can mutate the other's data through shared backing
// arrays.
func cloneObservation(obs *observation.Observation) *observation.Observation {
	cp := *obs
	cp.KeyPoints = append(observation.KeyPoints(nil), obs.KeyPoints...)
	cp.Descriptors = make(observation.Descriptors, len(obs.Descriptors))
	for i, d := range obs.Descriptors {
		cp.Descriptors[i] = append([]float64(nil), d...)
	}
	if obs.Points3D != nil {
		cp.Points3D = append([]r3.Vector(nil), obs.Points3D...)
	}
	return &cp
}

// Destroy discards all records.
func (s *MemoryStore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[int]*observation.Observation)
	return nil
}
