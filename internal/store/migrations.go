package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Models table - one immutable classifier/label encoder pair per row
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			classifier TEXT NOT NULL,
			labels TEXT NOT NULL,
			num_classes INTEGER NOT NULL,
			num_features INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Model labels table - the letters each model can produce, in class order
		`CREATE TABLE IF NOT EXISTS model_labels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
			class_index INTEGER NOT NULL,
			letter TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_model_labels_model_id ON model_labels(model_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
