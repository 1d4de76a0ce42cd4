package store

import (
	"database/sql"
	"time"
)

// Sample is one raw descriptor recorded for an identity.
type Sample struct {
	ID          int64
	IdentityID  string
	SampleIndex int
	Descriptor  []float32
	CreatedAt   time.Time
}

// SampleRepository provides operations on identity samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Replace swaps all samples of an identity for the given descriptors in a single
// transaction and updates the identity's sample count.
func (r *SampleRepository) Replace(identityID string, descriptors [][]float32) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM identity_samples WHERE identity_id = ?`, identityID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO identity_samples (identity_id, sample_index, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, d := range descriptors {
		data, err := encodeVector(d)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(identityID, i, data); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`UPDATE identities SET samples = ?, updated_at = ? WHERE id = ?`,
		len(descriptors), time.Now(), identityID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetByIdentityID retrieves all samples for a given identity.
func (r *SampleRepository) GetByIdentityID(identityID string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, identity_id, sample_index, data, created_at
		 FROM identity_samples
		 WHERE identity_id = ?
		 ORDER BY sample_index`,
		identityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var data string
		if err := rows.Scan(&s.ID, &s.IdentityID, &s.SampleIndex, &data, &s.CreatedAt); err != nil {
			return nil, err
		}
		if s.Descriptor, err = decodeVector(data); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}
