package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"heartapi/history"
)

// PredictionLog is a write-only SQLite audit trail of served predictions.
type PredictionLog struct {
	db *sql.DB
}

// OpenPredictionLog opens (or creates) the audit database at path.
func OpenPredictionLog(path string) (*PredictionLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PredictionLog{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        features TEXT NOT NULL,
        prediction INTEGER NOT NULL,
        timestamp TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("create predictions table: %w", err)
	}
	return nil
}

// Record inserts entry.
func (p *PredictionLog) Record(ctx context.Context, entry history.Entry) error {
	features, err := json.Marshal(entry.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO predictions (features, prediction, timestamp) VALUES (?, ?, ?)`,
		string(features), entry.Prediction, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

// Count returns the number of audited predictions.
func (p *PredictionLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

func (p *PredictionLog) Close() error {
	return p.db.Close()
}
