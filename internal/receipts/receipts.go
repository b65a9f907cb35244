// Package receipts persists a local record of every signature this client
// publishes. The store is a convenience for the CLI — the registry event
// log remains the source of truth and discovery never consults it.
package receipts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the local receipt store.
const schema = `
CREATE TABLE IF NOT EXISTS receipts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    document_hash   TEXT NOT NULL,
    chain_id        INTEGER NOT NULL,
    chain_index     INTEGER NOT NULL,
    signature       TEXT NOT NULL UNIQUE,
    tx_hash         TEXT NOT NULL,
    signer          TEXT NOT NULL,
    annotation      TEXT,
    created_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_receipts_document ON receipts(document_hash, chain_id, chain_index);
CREATE INDEX IF NOT EXISTS idx_receipts_created ON receipts(created_at);
`

// Receipt records one published signature.
type Receipt struct {
	ID           int64
	DocumentHash string
	ChainID      uint64
	ChainIndex   int
	Signature    string
	TxHash       string
	Signer       string
	Annotation   string
	CreatedAt    time.Time
}

// Store is the SQLite receipt store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the receipt database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Insert stores a receipt and returns its id.
func (s *Store) Insert(r *Receipt) (int64, error) {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.Exec(`
		INSERT INTO receipts (document_hash, chain_id, chain_index, signature, tx_hash, signer, annotation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DocumentHash, r.ChainID, r.ChainIndex, r.Signature, r.TxHash, r.Signer, r.Annotation, createdAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert receipt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// ByDocument returns all receipts for a document hash on a chain, in chain
// order.
func (s *Store) ByDocument(documentHash string, chainID uint64) ([]Receipt, error) {
	rows, err := s.db.Query(`
		SELECT id, document_hash, chain_id, chain_index, signature, tx_hash, signer, annotation, created_at
		FROM receipts WHERE document_hash = ? AND chain_id = ?
		ORDER BY chain_index`,
		documentHash, chainID,
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

// Recent returns the most recently created receipts across all documents,
// newest first.
func (s *Store) Recent(limit int) ([]Receipt, error) {
	rows, err := s.db.Query(`
		SELECT id, document_hash, chain_id, chain_index, signature, tx_hash, signer, annotation, created_at
		FROM receipts ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	return scanReceipts(rows)
}

func scanReceipts(rows *sql.Rows) ([]Receipt, error) {
	var out []Receipt
	for rows.Next() {
		var r Receipt
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.DocumentHash, &r.ChainID, &r.ChainIndex,
			&r.Signature, &r.TxHash, &r.Signer, &r.Annotation, &createdAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
