package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// migration is one numbered, idempotent schema step. Each runs in its own
// transaction so a crash mid-migration never leaves half of one step applied.
type migration struct {
	version int
	sql     string
}

var libraryMigrations = []migration{
	{version: 1, sql: `
		CREATE TABLE IF NOT EXISTS migration (version INTEGER PRIMARY KEY);

		CREATE TABLE IF NOT EXISTS document_blobs (
			hash       TEXT PRIMARY KEY,
			content    BLOB NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS documents (
			id            TEXT PRIMARY KEY,
			source_id     TEXT NOT NULL,
			path          TEXT NOT NULL,
			version_label TEXT NOT NULL,
			uri           TEXT NOT NULL,
			title         TEXT NOT NULL,
			hash          TEXT NOT NULL REFERENCES document_blobs(hash),
			content_type  TEXT NOT NULL,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			UNIQUE(source_id, path, version_label)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_source_version
			ON documents(source_id, version_label, active);

		CREATE TABLE IF NOT EXISTS chunks (
			id                TEXT PRIMARY KEY,
			document_id       TEXT NOT NULL REFERENCES documents(id),
			position          INTEGER NOT NULL,
			chunk_type        TEXT NOT NULL,
			language          TEXT NOT NULL,
			breadcrumb        TEXT NOT NULL,
			content           TEXT NOT NULL,
			preview           TEXT NOT NULL,
			line_start        INTEGER NOT NULL,
			line_end          INTEGER NOT NULL,
			char_start        INTEGER NOT NULL,
			char_end          INTEGER NOT NULL,
			token_count       INTEGER NOT NULL,
			symbol_name       TEXT NOT NULL DEFAULT '',
			symbol_type       TEXT NOT NULL DEFAULT '',
			symbol_id         TEXT NOT NULL DEFAULT '',
			symbol_part_index INTEGER NOT NULL DEFAULT 0,
			symbol_part_count INTEGER NOT NULL DEFAULT 1,
			chunk_sha         TEXT NOT NULL,
			doc_path          TEXT NOT NULL,
			doc_uri           TEXT NOT NULL,
			doc_title         TEXT NOT NULL,
			created_at        TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, position);

		-- External-content FTS5 table kept in lockstep with chunks via
		-- triggers, so chunk rowid and fts rowid never drift apart.
		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			content, breadcrumb, doc_path, doc_uri, doc_title,
			content='chunks', content_rowid='rowid',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
			INSERT INTO chunks_fts(rowid, content, breadcrumb, doc_path, doc_uri, doc_title)
			VALUES (new.rowid, new.content, new.breadcrumb, new.doc_path, new.doc_uri, new.doc_title);
		END;
		CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content, breadcrumb, doc_path, doc_uri, doc_title)
			VALUES('delete', old.rowid, old.content, old.breadcrumb, old.doc_path, old.doc_uri, old.doc_title);
		END;
		CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
			INSERT INTO chunks_fts(chunks_fts, rowid, content, breadcrumb, doc_path, doc_uri, doc_title)
			VALUES('delete', old.rowid, old.content, old.breadcrumb, old.doc_path, old.doc_uri, old.doc_title);
			INSERT INTO chunks_fts(rowid, content, breadcrumb, doc_path, doc_uri, doc_title)
			VALUES (new.rowid, new.content, new.breadcrumb, new.doc_path, new.doc_uri, new.doc_title);
		END;

		CREATE TABLE IF NOT EXISTS vector_presence (
			chunk_id   TEXT NOT NULL,
			model_uri  TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (chunk_id, model_uri)
		);

		CREATE TABLE IF NOT EXISTS crawl_pages (
			source_id      TEXT NOT NULL,
			url            TEXT NOT NULL,
			normalized_url TEXT NOT NULL,
			depth          INTEGER NOT NULL,
			state          TEXT NOT NULL,
			last_error     TEXT NOT NULL DEFAULT '',
			discovered_at  TEXT NOT NULL,
			fetched_at     TEXT,
			PRIMARY KEY (source_id, normalized_url)
		);
		CREATE INDEX IF NOT EXISTS idx_crawl_pages_state ON crawl_pages(source_id, state);

		CREATE TABLE IF NOT EXISTS library_state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`},
}

// normalizeQueryPattern keeps only letters, digits and spaces; used to
// retry a query that FTS5 rejected for its bare-MATCH syntax.
var normalizeQueryPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// SQLiteLibraryStore implements LibraryStore and TextIndex against one
// per-source SQLite database file. It follows the same corruption-recovery,
// WAL-pragma and delete/retry-on-syntax-error shape the teacher's
// SQLiteBM25Index used for its single-purpose FTS5 index, generalized here
// across the library's full document/chunk/crawl schema.
type SQLiteLibraryStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ LibraryStore = (*SQLiteLibraryStore)(nil)
	_ TextIndex    = (*SQLiteLibraryStore)(nil)
)

// recoverableOpenErr reports whether an I/O failure opening the database
// warrants deleting and recreating the file rather than bubbling up.
func recoverableOpenErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "short_read") || strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "malformed database") || strings.Contains(msg, "not a database")
}

// OpenSQLiteLibraryStore opens (creating if absent) the library database at
// path, applying any pending migrations. An empty path opens an in-memory
// database, used by tests.
func OpenSQLiteLibraryStore(path string) (*SQLiteLibraryStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create library dir %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		if path != "" && recoverableOpenErr(err) {
			slog.Warn("library_db_unreadable_recreating",
				slog.String("path", path), slog.String("error", err.Error()))
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			return OpenSQLiteLibraryStore(path)
		}
		return nil, fmt.Errorf("ping library db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteLibraryStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate library db: %w", err)
	}
	return s, nil
}

func (s *SQLiteLibraryStore) migrate() error {
	var current int
	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM migration`)
	if err := row.Scan(&current); err != nil {
		// migration table doesn't exist yet; fall through with current=0
		current = 0
	}

	for _, m := range libraryMigrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO migration(version) VALUES (?)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d record: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", m.version, err)
		}
	}
	return nil
}

// HashContent returns the content-addressing hash used for DocumentBlob keys.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *SQLiteLibraryStore) UpsertDocument(ctx context.Context, doc *Document, content []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, fmt.Errorf("library store closed")
	}

	hash := HashContent(content)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO document_blobs(hash, content, created_at) VALUES (?, ?, ?)`,
		hash, content, now.Format(time.RFC3339Nano)); err != nil {
		return false, fmt.Errorf("insert blob: %w", err)
	}

	var existingHash string
	err = tx.QueryRowContext(ctx,
		`SELECT hash FROM documents WHERE source_id = ? AND path = ? AND version_label = ?`,
		doc.SourceID, doc.Path, doc.VersionLabel).Scan(&existingHash)

	changed := true
	switch {
	case err == sql.ErrNoRows:
		doc.Hash = hash
		doc.CreatedAt = now
		doc.UpdatedAt = now
		doc.Active = true
		if doc.ID == "" {
			doc.ID = HashContent([]byte(doc.SourceID + ":" + doc.Path + ":" + doc.VersionLabel))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents(id, source_id, path, version_label, uri, title, hash, content_type, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			doc.ID, doc.SourceID, doc.Path, doc.VersionLabel, doc.URI, doc.Title, hash, string(doc.ContentType),
			now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)); err != nil {
			return false, fmt.Errorf("insert document: %w", err)
		}
	case err != nil:
		return false, fmt.Errorf("lookup document: %w", err)
	default:
		changed = existingHash != hash
		doc.Hash = hash
		doc.UpdatedAt = now
		doc.Active = true
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET uri = ?, title = ?, hash = ?, content_type = ?, active = 1, updated_at = ?
			WHERE source_id = ? AND path = ? AND version_label = ?`,
			doc.URI, doc.Title, hash, string(doc.ContentType), now.Format(time.RFC3339Nano),
			doc.SourceID, doc.Path, doc.VersionLabel); err != nil {
			return false, fmt.Errorf("update document: %w", err)
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT id, created_at FROM documents WHERE source_id = ? AND path = ? AND version_label = ?`,
			doc.SourceID, doc.Path, doc.VersionLabel).Scan(&doc.ID, &doc.CreatedAt); err != nil {
			return false, fmt.Errorf("reload document id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return changed, nil
}

func (s *SQLiteLibraryStore) scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var contentType, createdAt, updatedAt string
	var active int
	if err := row.Scan(&d.ID, &d.SourceID, &d.Path, &d.VersionLabel, &d.URI, &d.Title, &d.Hash,
		&contentType, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	d.ContentType = ContentType(contentType)
	d.Active = active != 0
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &d, nil
}

func (s *SQLiteLibraryStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, path, version_label, uri, title, hash, content_type, active, created_at, updated_at
		FROM documents WHERE id = ?`, id)
	doc, err := s.scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s not found", id)
	}
	return doc, err
}

func (s *SQLiteLibraryStore) GetDocumentByPath(ctx context.Context, sourceID, path, versionLabel string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, path, version_label, uri, title, hash, content_type, active, created_at, updated_at
		FROM documents WHERE source_id = ? AND path = ? AND version_label = ?`, sourceID, path, versionLabel)
	doc, err := s.scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s/%s@%s not found", sourceID, path, versionLabel)
	}
	return doc, err
}

func (s *SQLiteLibraryStore) ListDocuments(ctx context.Context, sourceID, versionLabel string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, path, version_label, uri, title, hash, content_type, active, created_at, updated_at
		FROM documents WHERE source_id = ? AND version_label = ? ORDER BY path`, sourceID, versionLabel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Document
	for rows.Next() {
		var d Document
		var contentType, createdAt, updatedAt string
		var active int
		if err := rows.Scan(&d.ID, &d.SourceID, &d.Path, &d.VersionLabel, &d.URI, &d.Title, &d.Hash,
			&contentType, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		d.ContentType = ContentType(contentType)
		d.Active = active != 0
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *SQLiteLibraryStore) FindDocumentByLocator(ctx context.Context, locator string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, path, version_label, uri, title, hash, content_type, active, created_at, updated_at
		FROM documents WHERE active = 1 AND (path = ? OR uri = ?) ORDER BY updated_at DESC LIMIT 1`, locator, locator)
	return s.scanDocument(row)
}

func (s *SQLiteLibraryStore) GetBlob(ctx context.Context, hash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM document_blobs WHERE hash = ?`, hash).Scan(&content)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("blob %s not found", hash)
	}
	return content, err
}

func (s *SQLiteLibraryStore) SetDocumentActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flag := 0
	if active {
		flag = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE documents SET active = ?, updated_at = ? WHERE id = ?`,
		flag, time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

// DeleteInactiveDocuments removes documents left inactive by a sync (superseded
// or deleted upstream) once a grace period has passed, cascading to their
// chunks so chunks never outlive their document.
func (s *SQLiteLibraryStore) DeleteInactiveDocuments(ctx context.Context, sourceID, versionLabel string, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM documents
		WHERE source_id = ? AND version_label = ? AND active = 0 AND updated_at < ?`,
		sourceID, versionLabel, olderThan.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if err := deleteChunksForDocumentTx(ctx, tx, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func deleteChunksForDocumentTx(ctx context.Context, tx *sql.Tx, documentID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	return err
}

// InsertChunks replaces every chunk of a document in one transaction. FTS
// rows follow automatically via the chunks_ai/ad/au triggers, so the fts
// rowid always matches the owning chunk's rowid.
func (s *SQLiteLibraryStore) InsertChunks(ctx context.Context, documentID string, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("library store closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteChunksForDocumentTx(ctx, tx, documentID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(
			id, document_id, position, chunk_type, language, breadcrumb, content, preview,
			line_start, line_end, char_start, char_end, token_count,
			symbol_name, symbol_type, symbol_id, symbol_part_index, symbol_part_count,
			chunk_sha, doc_path, doc_uri, doc_title, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, c := range chunks {
		c.DocumentID = documentID
		c.Position = i
		if c.ChunkSHA == "" {
			c.ChunkSHA = HashContent([]byte(c.Content))
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.Position, c.ChunkType, c.Language, c.Breadcrumb, c.Content, c.Preview,
			c.LineStart, c.LineEnd, c.CharStart, c.CharEnd, c.TokenCount,
			c.SymbolName, c.SymbolType, c.SymbolID, c.SymbolPartIndex, c.SymbolPartCount,
			c.ChunkSHA, c.DocPath, c.DocURI, c.DocTitle, now); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteLibraryStore) DeleteChunksForDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	return err
}

func scanChunk(scanner interface {
	Scan(dest ...any) error
}) (*Chunk, error) {
	var c Chunk
	var createdAt string
	if err := scanner.Scan(
		&c.ID, &c.DocumentID, &c.Position, &c.ChunkType, &c.Language, &c.Breadcrumb, &c.Content, &c.Preview,
		&c.LineStart, &c.LineEnd, &c.CharStart, &c.CharEnd, &c.TokenCount,
		&c.SymbolName, &c.SymbolType, &c.SymbolID, &c.SymbolPartIndex, &c.SymbolPartCount,
		&c.ChunkSHA, &c.DocPath, &c.DocURI, &c.DocTitle, &createdAt); err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

const chunkColumns = `
	id, document_id, position, chunk_type, language, breadcrumb, content, preview,
	line_start, line_end, char_start, char_end, token_count,
	symbol_name, symbol_type, symbol_id, symbol_part_index, symbol_part_count,
	chunk_sha, doc_path, doc_uri, doc_title, created_at`

func (s *SQLiteLibraryStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s not found", id)
	}
	return c, err
}

func (s *SQLiteLibraryStore) GetChunksForDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY position`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteLibraryStore) SaveVectors(ctx context.Context, rows []*VectorRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO vector_presence(chunk_id, model_uri, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ChunkID, r.ModelURI, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteLibraryStore) ClearVectors(ctx context.Context, modelURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM vector_presence WHERE model_uri = ?`, modelURI)
	return err
}

func (s *SQLiteLibraryStore) ChunksNeedingEmbedding(ctx context.Context, modelURI string, limit int) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + chunkColumns + ` FROM chunks c
		WHERE NOT EXISTS (SELECT 1 FROM vector_presence vp WHERE vp.chunk_id = c.id AND vp.model_uri = ?)
		ORDER BY c.document_id, c.position`
	args := []any{modelURI}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteLibraryStore) GetEmbeddingStats(ctx context.Context, modelURI string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&total); err != nil {
		return 0, 0, err
	}
	var withVector int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_presence WHERE model_uri = ?`, modelURI).Scan(&withVector); err != nil {
		return 0, 0, err
	}
	return withVector, total - withVector, nil
}

func (s *SQLiteLibraryStore) UpsertCrawlPage(ctx context.Context, page *CrawlPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	discovered := page.DiscoveredAt
	if discovered.IsZero() {
		discovered = time.Now().UTC()
	}
	var fetchedAt any
	if !page.FetchedAt.IsZero() {
		fetchedAt = page.FetchedAt.Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_pages(source_id, url, normalized_url, depth, state, last_error, discovered_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, normalized_url) DO UPDATE SET
			url = excluded.url, depth = excluded.depth, state = excluded.state,
			last_error = excluded.last_error, fetched_at = excluded.fetched_at`,
		page.SourceID, page.URL, page.NormalizedURL, page.Depth, string(page.State), page.LastError,
		discovered.Format(time.RFC3339Nano), fetchedAt)
	return err
}

func (s *SQLiteLibraryStore) GetCrawlPage(ctx context.Context, sourceID, normalizedURL string) (*CrawlPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, url, normalized_url, depth, state, last_error, discovered_at, fetched_at
		FROM crawl_pages WHERE source_id = ? AND normalized_url = ?`, sourceID, normalizedURL)
	return scanCrawlPage(row)
}

func scanCrawlPage(row *sql.Row) (*CrawlPage, error) {
	var p CrawlPage
	var state, discoveredAt string
	var fetchedAt sql.NullString
	if err := row.Scan(&p.SourceID, &p.URL, &p.NormalizedURL, &p.Depth, &state, &p.LastError, &discoveredAt, &fetchedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("crawl page not found")
		}
		return nil, err
	}
	p.State = CrawlState(state)
	p.DiscoveredAt, _ = time.Parse(time.RFC3339Nano, discoveredAt)
	if fetchedAt.Valid {
		p.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt.String)
	}
	return &p, nil
}

func (s *SQLiteLibraryStore) UpdateCrawlPageState(ctx context.Context, sourceID, normalizedURL string, state CrawlState, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fetchedAt any
	if state == CrawlStateDone || state == CrawlStateFailed {
		fetchedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE crawl_pages SET state = ?, last_error = ?, fetched_at = COALESCE(?, fetched_at)
		WHERE source_id = ? AND normalized_url = ?`, string(state), errMsg, fetchedAt, sourceID, normalizedURL)
	return err
}

// PendingCrawlPages returns pages still owed a fetch attempt: pending
// pages plus failed pages, which are retried on the next crawl rather
// than left stuck. Done pages are never returned.
func (s *SQLiteLibraryStore) PendingCrawlPages(ctx context.Context, sourceID string, limit int) ([]*CrawlPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, url, normalized_url, depth, state, last_error, discovered_at, fetched_at
		FROM crawl_pages WHERE source_id = ? AND state IN (?, ?) ORDER BY depth, discovered_at LIMIT ?`,
		sourceID, string(CrawlStatePending), string(CrawlStateFailed), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CrawlPage
	for rows.Next() {
		var p CrawlPage
		var state, discoveredAt string
		var fetchedAt sql.NullString
		if err := rows.Scan(&p.SourceID, &p.URL, &p.NormalizedURL, &p.Depth, &state, &p.LastError, &discoveredAt, &fetchedAt); err != nil {
			return nil, err
		}
		p.State = CrawlState(state)
		p.DiscoveredAt, _ = time.Parse(time.RFC3339Nano, discoveredAt)
		if fetchedAt.Valid {
			p.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt.String)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteLibraryStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM library_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteLibraryStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO library_state(key, value) VALUES (?, ?)`, key, value)
	return err
}

// Index is a no-op: chunks_fts is kept current by the chunks_ai/ad/au
// triggers as part of InsertChunks, so there is nothing extra to index.
func (s *SQLiteLibraryStore) Index(ctx context.Context, chunks []*Chunk) error {
	return nil
}

// Search runs query verbatim against chunks_fts first; on an FTS5 syntax
// error it retries once with a letters/digits-only normalized form before
// giving up and returning no results, matching the teacher's
// SQLiteBM25Index tolerance for malformed MATCH expressions.
func (s *SQLiteLibraryStore) Search(ctx context.Context, query string, limit int) ([]*SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("library store closed")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	hits, err := s.searchFTS(ctx, query, limit)
	if err == nil {
		return hits, nil
	}
	if !isFTSSyntaxError(err) {
		return nil, err
	}

	normalized := strings.TrimSpace(normalizeQueryPattern.ReplaceAllString(query, " "))
	if normalized == "" {
		return nil, nil
	}
	hits, err = s.searchFTS(ctx, normalized, limit)
	if err != nil {
		if isFTSSyntaxError(err) {
			return nil, nil
		}
		return nil, err
	}
	return hits, nil
}

func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5:") || strings.Contains(msg, "syntax error")
}

func (s *SQLiteLibraryStore) searchFTS(ctx context.Context, query string, limit int) ([]*SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunks.id, bm25(chunks_fts)
		FROM chunks_fts JOIN chunks ON chunks.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts)
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []*SearchHit
	for rows.Next() {
		var id string
		var bm25 float64
		if err := rows.Scan(&id, &bm25); err != nil {
			return nil, err
		}
		// bm25() returns negative-is-better; fold into a positive 0-1 score.
		hits = append(hits, &SearchHit{ChunkID: id, Score: 1.0 / (1.0 + (-bm25))})
	}
	return hits, rows.Err()
}

func (s *SQLiteLibraryStore) Delete(ctx context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ",")), args...)
	return err
}

func (s *SQLiteLibraryStore) Stats(ctx context.Context) (*IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return nil, err
	}
	return &IndexStats{ChunkCount: count}, nil
}

func (s *SQLiteLibraryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
