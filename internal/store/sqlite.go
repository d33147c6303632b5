package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/seantiz/crucible/internal/model"

	_ "modernc.org/sqlite"
)

const createModelsTable = `
CREATE TABLE IF NOT EXISTS models (
    id              TEXT PRIMARY KEY,
    algorithm       TEXT NOT NULL,
    target_column   TEXT NOT NULL,
    feature_columns TEXT NOT NULL,
    hyperparameters TEXT,
    metrics         TEXT,
    dataset_id      TEXT NOT NULL,
    artifact        BLOB NOT NULL,
    created_at      DATETIME NOT NULL,
    classes         TEXT
)`

// Databases created before class names were stored lack the column.
const addClassesColumn = `ALTER TABLE models ADD COLUMN classes TEXT`

// Compile-time interface satisfaction check.
var _ ModelStore = (*SQLiteModelStore)(nil)

// SQLiteModelStore implements ModelStore using SQLite.
type SQLiteModelStore struct {
	db *sql.DB
}

// NewSQLiteModelStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteModelStore(dbPath string) (*SQLiteModelStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// :memory: databases are per-connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createModelsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create models table: %w", err)
	}

	if _, err := db.Exec(addClassesColumn); err != nil && !strings.Contains(err.Error(), "duplicate column") {
		db.Close()
		return nil, fmt.Errorf("add classes column: %w", err)
	}

	return &SQLiteModelStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteModelStore) Close() error {
	return s.db.Close()
}

// SaveModel inserts a model record.
func (s *SQLiteModelStore) SaveModel(ctx context.Context, m *model.ModelRecord) error {
	features, err := json.Marshal(m.FeatureColumns)
	if err != nil {
		return fmt.Errorf("encode feature columns: %w", err)
	}
	params, err := json.Marshal(m.Hyperparameters)
	if err != nil {
		return fmt.Errorf("encode hyperparameters: %w", err)
	}
	metrics, err := json.Marshal(m.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	var classes sql.NullString
	if len(m.Classes) > 0 {
		b, err := json.Marshal(m.Classes)
		if err != nil {
			return fmt.Errorf("encode classes: %w", err)
		}
		classes = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO models (
			id, algorithm, target_column, feature_columns, hyperparameters,
			metrics, dataset_id, artifact, created_at, classes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Algorithm, m.TargetColumn, string(features), string(params),
		string(metrics), m.DatasetID, m.Artifact, m.CreatedAt, classes,
	)
	if err != nil {
		return fmt.Errorf("insert model: %w", err)
	}
	return nil
}

// GetModel retrieves a model, including its artifact, by ID.
func (s *SQLiteModelStore) GetModel(ctx context.Context, id string) (*model.ModelRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, algorithm, target_column, feature_columns, hyperparameters,
			metrics, dataset_id, artifact, created_at, classes
		FROM models WHERE id = ?`, id,
	)
	m, err := scanModel(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("model %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

// ModelExists reports whether a model with the given ID is stored.
func (s *SQLiteModelStore) ModelExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM models WHERE id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("count model: %w", err)
	}
	return n > 0, nil
}

// ListModels returns model metadata ordered by created_at DESC. Artifacts are
// not loaded.
func (s *SQLiteModelStore) ListModels(ctx context.Context) ([]*model.ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, algorithm, target_column, feature_columns, hyperparameters,
			metrics, dataset_id, NULL, created_at, classes
		FROM models ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []*model.ModelRecord
	for rows.Next() {
		m, err := scanModel(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate models: %w", err)
	}
	return models, nil
}

// DeleteModel removes a model by ID.
func (s *SQLiteModelStore) DeleteModel(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM models WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("model %q: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner, withArtifact bool) (*model.ModelRecord, error) {
	m := &model.ModelRecord{}
	var features string
	var params, metrics, classes sql.NullString
	var artifact []byte
	if err := row.Scan(
		&m.ID, &m.Algorithm, &m.TargetColumn, &features, &params,
		&metrics, &m.DatasetID, &artifact, &m.CreatedAt, &classes,
	); err != nil {
		return nil, err
	}
	if withArtifact {
		m.Artifact = artifact
	}
	if err := json.Unmarshal([]byte(features), &m.FeatureColumns); err != nil {
		return nil, fmt.Errorf("decode feature columns: %w", err)
	}
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &m.Hyperparameters); err != nil {
			return nil, fmt.Errorf("decode hyperparameters: %w", err)
		}
	}
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &m.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	if classes.Valid && classes.String != "" {
		if err := json.Unmarshal([]byte(classes.String), &m.Classes); err != nil {
			return nil, fmt.Errorf("decode classes: %w", err)
		}
	}
	return m, nil
}
