package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/ayusman/facewatch/internal/store"
)

// ErrNoSource is returned by Refresh on a store that was not loaded from a path.
var ErrNoSource = errors.New("identity store has no source path")

// jsonIdentity is one entry of the JSON identity database:
// {"alice": {"mean_embedding": [...]}, ...}
type jsonIdentity struct {
	MeanEmbedding []float32 `json:"mean_embedding"`
}

// Load reads identities from path, which is either a JSON export or a SQLite
// database. The returned store is always usable: when reading fails it is
// empty and the error explains why, leaving the caller to decide whether an
// empty store is acceptable.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	s.replace(nil)
	return s, s.Refresh()
}

// Refresh re-reads the source the store was loaded from. On failure the store
// becomes empty so that a corrupted database degrades to "nobody recognized".
func (s *Store) Refresh() error {
	if s.path == "" {
		return ErrNoSource
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	records, err := ReadFile(s.path)
	if err != nil {
		s.replace(nil)
		return fmt.Errorf("load identities from %s: %w", s.path, err)
	}

	if dropped := s.replace(records); dropped > 0 {
		slog.Warn("skipped identities with mismatched descriptor dimension",
			"path", s.path,
			"dropped", dropped,
			"dim", s.Dim(),
		)
	}

	slog.Info("identities loaded", "path", s.path, "count", s.Len(), "dim", s.Dim())
	return nil
}

// ReadFile reads identity records from a JSON export or a SQLite database,
// ordered by name.
func ReadFile(path string) ([]Record, error) {
	if store.IsDatabasePath(path) {
		return readDatabase(path)
	}
	return readJSON(path)
}

func readJSON(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]jsonIdentity
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse identity json: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		records = append(records, Record{Name: name, Descriptor: raw[name].MeanEmbedding})
	}
	return records, nil
}

func readDatabase(path string) ([]Record, error) {
	// sql.Open would silently create a fresh database
	if !store.Exists(path) {
		return nil, fmt.Errorf("identity database %s: %w", path, os.ErrNotExist)
	}

	st, err := store.New(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	identities, err := st.Identities().List()
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(identities))
	for _, i := range identities {
		records = append(records, Record{Name: i.Name, Descriptor: i.MeanEmbedding})
	}
	return records, nil
}

// WriteJSON writes records in the JSON identity database format.
func WriteJSON(path string, records []Record) error {
	raw := make(map[string]jsonIdentity, len(records))
	for _, r := range records {
		raw[r.Name] = jsonIdentity{MeanEmbedding: r.Descriptor}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
