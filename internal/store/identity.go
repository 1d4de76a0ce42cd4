package store

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Identity is a known person with the descriptor they are matched against.
type Identity struct {
	ID            string
	Name          string
	MeanEmbedding []float32
	Samples       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Dim returns the descriptor dimension.
func (i *Identity) Dim() int {
	return len(i.MeanEmbedding)
}

// IdentityRepository provides CRUD operations for identities.
type IdentityRepository struct {
	db *sql.DB
}

// Identities returns the identity repository for this store.
func (s *Store) Identities() *IdentityRepository {
	return &IdentityRepository{db: s.db}
}

const identityColumns = `id, name, mean_embedding, samples, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*Identity, error) {
	i := &Identity{}
	var embedding string

	if err := row.Scan(&i.ID, &i.Name, &embedding, &i.Samples, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}

	vec, err := decodeVector(embedding)
	if err != nil {
		return nil, err
	}
	i.MeanEmbedding = vec

	return i, nil
}

// Create inserts a new identity into the database.
func (r *IdentityRepository) Create(i *Identity) error {
	now := time.Now()
	i.CreatedAt = now
	i.UpdatedAt = now

	embedding, err := encodeVector(i.MeanEmbedding)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO identities (id, name, dim, mean_embedding, samples, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.Name, i.Dim(), embedding, i.Samples, i.CreatedAt, i.UpdatedAt,
	)
	return err
}

// GetByID retrieves an identity by its ID.
func (r *IdentityRepository) GetByID(id string) (*Identity, error) {
	i, err := scanIdentity(r.db.QueryRow(
		`SELECT `+identityColumns+` FROM identities WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return i, err
}

// GetByName retrieves an identity by its name.
func (r *IdentityRepository) GetByName(name string) (*Identity, error) {
	i, err := scanIdentity(r.db.QueryRow(
		`SELECT `+identityColumns+` FROM identities WHERE name = ?`, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return i, err
}

// List retrieves all identities ordered by name.
func (r *IdentityRepository) List() ([]*Identity, error) {
	rows, err := r.db.Query(`SELECT ` + identityColumns + ` FROM identities ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, i)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return identities, nil
}

// Update replaces the name, descriptor and sample count of an existing identity.
func (r *IdentityRepository) Update(i *Identity) error {
	i.UpdatedAt = time.Now()

	embedding, err := encodeVector(i.MeanEmbedding)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		`UPDATE identities SET name = ?, dim = ?, mean_embedding = ?, samples = ?, updated_at = ?
		 WHERE id = ?`,
		i.Name, i.Dim(), embedding, i.Samples, i.UpdatedAt, i.ID,
	)
	if err != nil {
		return err
	}

	return requireAffected(result)
}

// Delete removes an identity and its samples by ID.
func (r *IdentityRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteByName removes an identity and its samples by name.
func (r *IdentityRepository) DeleteByName(name string) error {
	result, err := r.db.Exec(`DELETE FROM identities WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
