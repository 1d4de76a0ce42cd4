package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Identities table - one representative descriptor per person
		`CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			dim INTEGER NOT NULL,
			mean_embedding TEXT NOT NULL,
			samples INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Identity samples table - raw descriptors the mean was computed from
		`CREATE TABLE IF NOT EXISTS identity_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			sample_index INTEGER NOT NULL,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_identity_samples_identity_id ON identity_samples(identity_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
