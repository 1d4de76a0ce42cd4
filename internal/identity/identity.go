// Package identity holds the known-identity records and answers best-match queries.
package identity

import (
	"sync"
	"sync/atomic"
)

// Record is a named representative descriptor.
type Record struct {
	Name       string
	Descriptor []float32
}

// Match is the winning identity of a query.
type Match struct {
	Name       string
	Similarity float64
}

// index is an immutable record set. All records share one dimension.
type index struct {
	records []Record
	dim     int
}

// Store answers similarity queries against a swappable set of identity records.
// Queries are lock-free and may run concurrently with Refresh.
type Store struct {
	path    string
	current atomic.Pointer[index]
	loadMu  sync.Mutex
}

// NewStore creates a store over the given records. Records whose dimension
// differs from the first record are dropped.
func NewStore(records []Record) *Store {
	s := &Store{}
	s.replace(records)
	return s
}

// newIndex builds an index and reports how many records it had to drop.
func newIndex(records []Record) (*index, int) {
	idx := &index{}
	dropped := 0
	for _, r := range records {
		if len(r.Descriptor) == 0 {
			dropped++
			continue
		}
		if idx.dim == 0 {
			idx.dim = len(r.Descriptor)
		}
		if len(r.Descriptor) != idx.dim {
			dropped++
			continue
		}
		idx.records = append(idx.records, r)
	}
	return idx, dropped
}

// Len returns the number of identities.
func (s *Store) Len() int {
	return len(s.current.Load().records)
}

// Dim returns the descriptor dimension, or 0 for an empty store.
func (s *Store) Dim() int {
	return s.current.Load().dim
}

// Names returns identity names in scan order.
func (s *Store) Names() []string {
	records := s.current.Load().records
	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Name
	}
	return names
}

// Path returns the source the store was loaded from, if any.
func (s *Store) Path() string {
	return s.path
}

// FindBestMatch scans every record and returns the one with the highest cosine
// similarity, provided that maximum reaches threshold. On equal scores the
// record scanned first wins.
func (s *Store) FindBestMatch(descriptor []float32, threshold float64) (Match, bool) {
	idx := s.current.Load()
	if len(idx.records) == 0 || len(descriptor) != idx.dim {
		return Match{}, false
	}

	bestIdx := -1
	bestSim := 0.0
	for i, r := range idx.records {
		sim := CosineSimilarity(descriptor, r.Descriptor)
		if bestIdx < 0 || sim > bestSim {
			bestIdx = i
			bestSim = sim
		}
	}

	if bestSim < threshold {
		return Match{}, false
	}

	return Match{Name: idx.records[bestIdx].Name, Similarity: bestSim}, true
}

// replace swaps in a new record set and returns the number of dropped records.
func (s *Store) replace(records []Record) int {
	idx, dropped := newIndex(records)
	s.current.Store(idx)
	return dropped
}
