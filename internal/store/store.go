// Package store persists named graphs in SQLite. Bodies are the canonical graph JSON,
// zstd-compressed, keyed by name and stamped with their blake3 digest.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/gyaneshwarpardhi/flowcode/internal/dag"
)

// ErrNotFound is returned when no graph is stored under a name.
var ErrNotFound = errors.New("graph not found")

const pragmasSQL = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA synchronous=NORMAL;
`

const schemaSQL = `
CREATE TABLE IF NOT EXISTS graphs (
  name       TEXT PRIMARY KEY,
  digest     TEXT NOT NULL,
  nodes      INTEGER NOT NULL,
  body       BLOB NOT NULL,
  updated_ms INTEGER NOT NULL
);
`

// Entry describes one stored graph without its body.
type Entry struct {
	Name      string    `json:"name"`
	Digest    string    `json:"digest"`
	Nodes     int       `json:"nodes"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DB is a graph store backed by one SQLite file.
type DB struct {
	conn *sql.DB
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &DB{conn: conn, enc: enc, dec: dec}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.dec.Close()
	return db.conn.Close()
}

// Save stores g under name, replacing any previous version, and returns its digest.
func (db *DB) Save(ctx context.Context, name string, g dag.Graph) (string, error) {
	if name == "" {
		return "", fmt.Errorf("save graph: name is required")
	}
	body, err := dag.Marshal(g)
	if err != nil {
		return "", fmt.Errorf("save graph %q: %w", name, err)
	}
	digest, err := dag.Digest(g)
	if err != nil {
		return "", fmt.Errorf("save graph %q: %w", name, err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO graphs (name, digest, nodes, body, updated_ms) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET digest = excluded.digest, nodes = excluded.nodes,
		   body = excluded.body, updated_ms = excluded.updated_ms`,
		name, digest, g.NodeCount(), db.enc.EncodeAll(body, nil), time.Now().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("save graph %q: %w", name, err)
	}
	return digest, nil
}

// Load returns the graph stored under name and its digest.
func (db *DB) Load(ctx context.Context, name string) (dag.Graph, string, error) {
	var (
		digest string
		blob   []byte
	)
	err := db.conn.QueryRowContext(ctx, `SELECT digest, body FROM graphs WHERE name = ?`, name).Scan(&digest, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return dag.Graph{}, "", fmt.Errorf("graph %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return dag.Graph{}, "", fmt.Errorf("load graph %q: %w", name, err)
	}
	body, err := db.dec.DecodeAll(blob, nil)
	if err != nil {
		return dag.Graph{}, "", fmt.Errorf("decompressing graph %q: %w", name, err)
	}
	g, err := dag.Parse(body)
	if err != nil {
		return dag.Graph{}, "", fmt.Errorf("load graph %q: %w", name, err)
	}
	return g, digest, nil
}

// List returns every stored graph ordered by name.
func (db *DB) List(ctx context.Context) ([]Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, digest, nodes, updated_ms FROM graphs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.Name, &e.Digest, &e.Nodes, &ms); err != nil {
			return nil, fmt.Errorf("list graphs: %w", err)
		}
		e.UpdatedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the graph stored under name.
func (db *DB) Delete(ctx context.Context, name string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM graphs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete graph %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("graph %q: %w", name, ErrNotFound)
	}
	return nil
}
