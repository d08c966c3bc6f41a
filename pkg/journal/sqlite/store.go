// Package sqlite implements the transaction journal on SQLite.
package sqlite

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/HadlerHT/Gateway-MQTT-Modbus/pkg/journal"
)

// Store implements journal.Store.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the journal database at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		topic TEXT NOT NULL,
		request BLOB,
		response BLOB,
		outcome TEXT NOT NULL,
		duration_us INTEGER,
		created_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save appends one transaction record.
func (s *Store) Save(rec *journal.Record) error {
	query := `INSERT INTO transactions (id, topic, request, response, outcome, duration_us, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query,
		rec.ID, rec.Topic, rec.Request, rec.Response,
		rec.Outcome, rec.Duration.Microseconds(), rec.CreatedAt)
	return err
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(limit int) ([]*journal.Record, error) {
	query := `SELECT id, topic, request, response, outcome, duration_us, created_at
	          FROM transactions ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*journal.Record
	for rows.Next() {
		var rec journal.Record
		var durationUS int64
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.Request, &rec.Response,
			&rec.Outcome, &durationUS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationUS) * time.Microsecond
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
