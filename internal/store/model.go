package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/signa/internal/classifier"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when a model name is already taken. Artifacts are
// immutable, so an existing name is never overwritten.
var ErrExists = errors.New("already exists")

// ModelRecord describes a stored artifact without its payload.
type ModelRecord struct {
	ID          string
	Name        string
	NumClasses  int
	NumFeatures int
	Labels      []string
	CreatedAt   time.Time
}

// ModelRepository stores and loads classifier artifacts.
type ModelRepository struct {
	db *sql.DB
}

// Models returns the model repository for this store.
func (s *Store) Models() *ModelRepository {
	return &ModelRepository{db: s.db}
}

// Create stores an artifact under a new name and returns its record.
func (r *ModelRepository) Create(name string, artifact *classifier.Artifact) (*ModelRecord, error) {
	if name == "" {
		return nil, errors.New("model name is required")
	}

	modelJSON, labelsJSON, err := artifact.Encode()
	if err != nil {
		return nil, err
	}

	rec := &ModelRecord{
		ID:          uuid.NewString(),
		Name:        name,
		NumClasses:  len(artifact.Labels()),
		NumFeatures: artifact.NumFeatures(),
		Labels:      artifact.Labels(),
		CreatedAt:   time.Now(),
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM models WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists > 0 {
		return nil, fmt.Errorf("model %q: %w", name, ErrExists)
	}

	_, err = tx.Exec(
		`INSERT INTO models (id, name, classifier, labels, num_classes, num_features, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, string(modelJSON), string(labelsJSON), rec.NumClasses, rec.NumFeatures, rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	stmt, err := tx.Prepare(`INSERT INTO model_labels (model_id, class_index, letter) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	for i, letter := range rec.Labels {
		if _, err := stmt.Exec(rec.ID, i, letter); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return rec, nil
}

// GetByName retrieves the record of the named model.
func (r *ModelRepository) GetByName(name string) (*ModelRecord, error) {
	rec := &ModelRecord{}

	err := r.db.QueryRow(
		`SELECT id, name, num_classes, num_features, created_at
		 FROM models WHERE name = ?`,
		name,
	).Scan(&rec.ID, &rec.Name, &rec.NumClasses, &rec.NumFeatures, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	labels, err := r.labels(rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Labels = labels

	return rec, nil
}

// List returns all stored models ordered by name.
func (r *ModelRepository) List() ([]*ModelRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, name, num_classes, num_features, created_at
		 FROM models ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ModelRecord
	for rows.Next() {
		rec := &ModelRecord{}
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.NumClasses, &rec.NumFeatures, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range records {
		if rec.Labels, err = r.labels(rec.ID); err != nil {
			return nil, err
		}
	}

	return records, nil
}

// Load decodes the named artifact.
func (r *ModelRepository) Load(name string) (*classifier.Artifact, error) {
	var modelJSON, labelsJSON string

	err := r.db.QueryRow(
		`SELECT classifier, labels FROM models WHERE name = ?`,
		name,
	).Scan(&modelJSON, &labelsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	artifact, err := classifier.DecodeArtifact([]byte(modelJSON), []byte(labelsJSON))
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}

	return artifact, nil
}

// Delete removes the named model and its labels.
func (r *ModelRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM models WHERE name = ?`, name)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *ModelRepository) labels(modelID string) ([]string, error) {
	rows, err := r.db.Query(
		`SELECT letter FROM model_labels WHERE model_id = ? ORDER BY class_index`,
		modelID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var letter string
		if err := rows.Scan(&letter); err != nil {
			return nil, err
		}
		labels = append(labels, letter)
	}

	return labels, rows.Err()
}
