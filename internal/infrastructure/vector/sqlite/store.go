package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // pure Go sqlite driver

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
	"github.com/kirillkom/rag-chatbot/internal/core/ports"
)

const (
	dbFileName = "index.db"
	defaultK   = 4
)

// Store is a persistent vector index kept in a single SQLite file under the
// persist directory. Search is a brute-force cosine scan.
type Store struct {
	db       *sql.DB
	path     string
	embedder ports.Embedder
}

func Open(ctx context.Context, persistDir string, embedder ports.Embedder) (*Store, error) {
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("create persist dir: %w", err)
	}
	path := filepath.Join(persistDir, dbFileName)

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, embedder: embedder}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content_hash TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL,
			vector BLOB NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_content_hash ON entries(content_hash)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Exists(ctx context.Context, contentHash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE content_hash = ? LIMIT 1`, contentHash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.WrapError(domain.ErrStoreFailure, "vector exists", err)
	}
	return true, nil
}

// Add writes every entry in one transaction: either all of them become
// visible or none do.
func (s *Store) Add(ctx context.Context, entries []domain.IndexedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrStoreFailure, "vector add", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries(content_hash, chunk_index, text, metadata, vector) VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return domain.WrapError(domain.ErrStoreFailure, "vector add", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		if len(entry.Vector) == 0 {
			return domain.WrapError(domain.ErrStoreFailure, "vector add", fmt.Errorf("entry %d has no vector", i))
		}
		meta, err := json.Marshal(entry.Chunk.Metadata)
		if err != nil {
			return domain.WrapError(domain.ErrStoreFailure, "vector add", fmt.Errorf("marshal metadata: %w", err))
		}
		if _, err := stmt.ExecContext(ctx,
			entry.Chunk.ContentHash,
			entry.Chunk.ChunkIndex,
			entry.Chunk.Text,
			string(meta),
			encodeVector(entry.Vector),
		); err != nil {
			return domain.WrapError(domain.ErrStoreFailure, "vector add", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrStoreFailure, "vector add commit", err)
	}
	return nil
}

func (s *Store) SimilaritySearch(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	if k <= 0 {
		k = defaultK
	}
	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingFailure, "embed query", err)
	}
	return s.SearchVector(ctx, queryVector, k)
}

// SearchVector ranks stored entries by cosine similarity to vector. Equal
// scores keep insertion order.
func (s *Store) SearchVector(ctx context.Context, vector []float32, k int) ([]domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT content_hash, chunk_index, text, metadata, vector FROM entries ORDER BY id`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStoreFailure, "vector search", err)
	}
	defer rows.Close()

	var scored []domain.Passage
	for rows.Next() {
		var (
			p        domain.Passage
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&p.ContentHash, &p.ChunkIndex, &p.Text, &metaJSON, &blob); err != nil {
			return nil, domain.WrapError(domain.ErrStoreFailure, "vector search scan", err)
		}
		stored := decodeVector(blob)
		if len(stored) != len(vector) {
			continue
		}
		if err := json.Unmarshal([]byte(metaJSON), &p.Metadata); err != nil {
			return nil, domain.WrapError(domain.ErrStoreFailure, "vector search metadata", err)
		}
		p.Score = cosine(vector, stored)
		scored = append(scored, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStoreFailure, "vector search", err)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > k {
		scored = scored[:k]
	}
	if scored == nil {
		scored = []domain.Passage{}
	}
	return scored, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return domain.WrapError(domain.ErrStoreFailure, "vector clear", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, domain.WrapError(domain.ErrStoreFailure, "vector count", err)
	}
	return n, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
