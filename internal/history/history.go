// Package history keeps an append-only SQLite log of entropy evaluations.
//
// The log is advisory. Scores are always computed from the persistent
// state file, never from history rows.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while the CLI appends
//   - synchronous=NORMAL
//   - busy_timeout=5000 for editor and CLI sharing one file
//   - a single open connection
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - evaluations table
const currentSchemaVersion = 1

// FileName is the database file inside the .lace directory.
const FileName = "history.db"

// Entry is one recorded evaluation.
type Entry struct {
	Seq                int64   `json:"seq"`
	RunID              string  `json:"run_id"`
	ModulePath         string  `json:"module_path"`
	Score              float64 `json:"score"`
	Trend              float64 `json:"trend"`
	VRS                float64 `json:"vrs"`
	PDS                float64 `json:"pds"`
	DDS                float64 `json:"dds"`
	CIS                float64 `json:"cis"`
	SCS                float64 `json:"scs"`
	StrictViolations   int     `json:"strict_violations"`
	AdvisoryViolations int     `json:"advisory_violations"`
	ContextHash        string  `json:"context_hash"` // see ContextHash
}

// Store is the history database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// It is safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one evaluation and returns its sequence number.
func (s *Store) Append(ctx context.Context, e Entry) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations
		(run_id, module_path, score, trend, vrs, pds, dds, cis, scs, strict_violations, advisory_violations, context_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.RunID,
		e.ModulePath,
		e.Score,
		e.Trend,
		e.VRS,
		e.PDS,
		e.DDS,
		e.CIS,
		e.SCS,
		e.StrictViolations,
		e.AdvisoryViolations,
		e.ContextHash,
	)
	if err != nil {
		return 0, fmt.Errorf("append evaluation: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append evaluation: %w", err)
	}
	return seq, nil
}

// List returns recorded evaluations ordered by seq. An empty modulePath
// lists every module. limit <= 0 returns all rows; otherwise the most
// recent limit rows are returned, still in ascending order.
//
// Returns an empty slice (not nil) when nothing is recorded.
func (s *Store) List(ctx context.Context, modulePath string, limit int) ([]Entry, error) {
	query := `
		SELECT seq, run_id, module_path, score, trend, vrs, pds, dds, cis, scs,
		       strict_violations, advisory_violations, context_hash
		FROM evaluations
		WHERE (? = '' OR module_path = ?)
		ORDER BY seq DESC`
	args := []any{modulePath, modulePath}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.Seq, &e.RunID, &e.ModulePath,
			&e.Score, &e.Trend,
			&e.VRS, &e.PDS, &e.DDS, &e.CIS, &e.SCS,
			&e.StrictViolations, &e.AdvisoryViolations,
			&e.ContextHash,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluations: %w", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
