package store

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

var (
	//go:embed sql/*
	sqlFiles embed.FS
)

// SQLiteStore implements Store in a single SQLite database file.
// Records are stored as JSON next to indexed loss and timestamp (unix nanoseconds) columns.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// One writer at a time; SQLite serializes writes anyway
	db.SetMaxOpenConns(1)

	ddl, err := sqlFiles.ReadFile("sql/ddl.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.Exec(string(ddl)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema in %s: %w", path, err)
	}

	slog.Debug("SQLite store opened", "path", path)
	return &SQLiteStore{db: db, path: path}, nil
}

// SaveRecord inserts or replaces the run's record.
func (s *SQLiteStore) SaveRecord(runID string, record *Record) error {
	if err := checkID(runID); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO run (run_id, loss, ts, record) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET loss = excluded.loss, ts = excluded.ts, record = excluded.record`,
		runID, record.Loss, record.Timestamp.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", runID, err)
	}

	slog.Debug("Record saved", "run_id", runID, "path", s.path)
	return nil
}

// LoadRecord reads the run's record.
func (s *SQLiteStore) LoadRecord(runID string) (*Record, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRow(`SELECT record FROM run WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", runID, err)
	}

	var record Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize record: %w", err)
	}
	return &record, nil
}

// ListRecords returns metadata for every run, oldest first.
func (s *SQLiteStore) ListRecords() ([]RecordInfo, error) {
	rows, err := s.db.Query(`SELECT run_id, record FROM run ORDER BY ts ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	infos := []RecordInfo{}
	for rows.Next() {
		var runID, data string
		if err := rows.Scan(&runID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		var record Record
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			slog.Warn("Failed to decode record for listing", "run_id", runID, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return infos, nil
}

// DeleteRecord removes the run, its artifacts and its trace.
func (s *SQLiteStore) DeleteRecord(runID string) error {
	if err := checkID(runID); err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM run WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete record %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return &NotFoundError{RunID: runID}
	}

	if _, err := tx.Exec(`DELETE FROM artifact WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete artifacts of %s: %w", runID, err)
	}
	if _, err := tx.Exec(`DELETE FROM trace WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete trace of %s: %w", runID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// SaveArtifact inserts or replaces a named blob.
func (s *SQLiteStore) SaveArtifact(runID, name string, data []byte) error {
	if err := checkArtifact(runID, name); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO artifact (run_id, name, data) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET data = excluded.data`,
		runID, name, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", name, err)
	}
	return nil
}

// LoadArtifact reads a named blob.
func (s *SQLiteStore) LoadArtifact(runID, name string) ([]byte, error) {
	if err := checkArtifact(runID, name); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM artifact WHERE run_id = ? AND name = ?`, runID, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", name, err)
	}
	return data, nil
}

// AppendTrace stores entries keyed by pass; a repeated pass replaces the old entry.
func (s *SQLiteStore) AppendTrace(runID string, entries ...TraceEntry) error {
	if err := checkID(runID); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal trace entry: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO trace (run_id, pass, entry) VALUES (?, ?, ?)
			 ON CONFLICT(run_id, pass) DO UPDATE SET entry = excluded.entry`,
			runID, entry.Pass, string(data),
		)
		if err != nil {
			return fmt.Errorf("failed to write trace entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace: %w", err)
	}
	return nil
}

// LoadTrace returns the run's trace ordered by pass.
func (s *SQLiteStore) LoadTrace(runID string) ([]TraceEntry, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT entry FROM trace WHERE run_id = ? ORDER BY pass ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	defer rows.Close()

	var entries []TraceEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan trace entry: %w", err)
		}
		var entry TraceEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trace: %w", err)
	}
	if len(entries) == 0 {
		return nil, &NotFoundError{RunID: runID}
	}
	return entries, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
