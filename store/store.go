// Package store persists observation records keyed by sequence index. The
// orchestrator writes each observation once at ingestion; the geometry
// verifier reads candidates back during verification.
package store

import (
	"github.com/pkg/errors"

	"github.com/ajaycharan/libhaloc/observation"
)

// ErrNotFound is returned by Get when no record exists for the index.
var ErrNotFound = errors.New("observation record not found")

// Store is a key-value record store for observations. Implementations are
// used by a single session with sequential access, so they do not need to
// support concurrent writers.
type Store interface {
	// Put persists an observation under its sequence index.
	Put(obs *observation.Observation) error
	// Get retrieves the observation stored under idx. It returns an error
	// wrapping ErrNotFound when the record does not exist.
	Get(idx int) (*observation.Observation, error)
	// Destroy discards every record and any backing resources. The store is
	// unusable afterwards.
	Destroy() error
}
