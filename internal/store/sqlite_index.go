package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var indexMigrations = []migration{
	{version: 1, sql: `
		CREATE TABLE IF NOT EXISTS migration (version INTEGER PRIMARY KEY);

		CREATE TABLE IF NOT EXISTS sources (
			id              TEXT PRIMARY KEY,
			kind            TEXT NOT NULL,
			display_name    TEXT NOT NULL,
			library_db_path TEXT NOT NULL,
			repo            TEXT NOT NULL DEFAULT '',
			ref             TEXT NOT NULL DEFAULT '',
			docs_path       TEXT NOT NULL DEFAULT '',
			ingest_mode     TEXT NOT NULL DEFAULT '',
			version_label   TEXT NOT NULL DEFAULT '',
			root_url        TEXT NOT NULL DEFAULT '',
			allow_paths     TEXT NOT NULL DEFAULT '',
			deny_paths      TEXT NOT NULL DEFAULT '',
			max_depth       INTEGER NOT NULL DEFAULT 0,
			max_pages       INTEGER NOT NULL DEFAULT 0,
			last_sync_at    TEXT,
			last_commit     TEXT NOT NULL DEFAULT '',
			last_etag       TEXT NOT NULL DEFAULT '',
			last_error      TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS source_versions (
			source_id     TEXT NOT NULL,
			version_label TEXT NOT NULL,
			ref           TEXT NOT NULL DEFAULT '',
			commit_sha    TEXT NOT NULL DEFAULT '',
			tree_hash     TEXT NOT NULL DEFAULT '',
			etag          TEXT NOT NULL DEFAULT '',
			synced_at     TEXT NOT NULL,
			PRIMARY KEY (source_id, version_label)
		);
	`},
}

// SQLiteIndexStore implements IndexStore, the single top-level database
// tracking every configured Source and its synced SourceVersions.
type SQLiteIndexStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ IndexStore = (*SQLiteIndexStore)(nil)

// OpenSQLiteIndexStore opens (creating if absent) the top-level index
// database at path, applying pending migrations.
func OpenSQLiteIndexStore(path string) (*SQLiteIndexStore, error) {
	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create index db dir %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		if path != "" && recoverableOpenErr(err) {
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			return OpenSQLiteIndexStore(path)
		}
		return nil, fmt.Errorf("ping index db: %w", err)
	}

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteIndexStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate index db: %w", err)
	}
	return s, nil
}

func (s *SQLiteIndexStore) migrate() error {
	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM migration`).Scan(&current); err != nil {
		current = 0
	}
	for _, m := range indexMigrations {
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
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndexStore) UpsertSource(ctx context.Context, src *Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	src.UpdatedAt = time.Now().UTC()

	var lastSyncAt any
	if !src.LastSyncAt.IsZero() {
		lastSyncAt = src.LastSyncAt.Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources(
			id, kind, display_name, library_db_path, repo, ref, docs_path, ingest_mode, version_label,
			root_url, allow_paths, deny_paths, max_depth, max_pages,
			last_sync_at, last_commit, last_etag, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind, display_name = excluded.display_name, library_db_path = excluded.library_db_path,
			repo = excluded.repo, ref = excluded.ref, docs_path = excluded.docs_path, ingest_mode = excluded.ingest_mode,
			version_label = excluded.version_label, root_url = excluded.root_url,
			allow_paths = excluded.allow_paths, deny_paths = excluded.deny_paths,
			max_depth = excluded.max_depth, max_pages = excluded.max_pages,
			last_sync_at = excluded.last_sync_at, last_commit = excluded.last_commit,
			last_etag = excluded.last_etag, last_error = excluded.last_error, updated_at = excluded.updated_at`,
		src.ID, string(src.Kind), src.DisplayName, src.LibraryDBPath, src.Repo, src.Ref, src.DocsPath,
		string(src.IngestMode), src.VersionLabel, src.RootURL,
		strings.Join(src.AllowPaths, "\n"), strings.Join(src.DenyPaths, "\n"), src.MaxDepth, src.MaxPages,
		lastSyncAt, src.LastCommit, src.LastETag, src.LastError,
		src.CreatedAt.Format(time.RFC3339Nano), now)
	return err
}

func scanSource(scanner interface{ Scan(...any) error }) (*Source, error) {
	var src Source
	var kind, ingestMode, allowPaths, denyPaths, createdAt, updatedAt string
	var lastSyncAt sql.NullString
	if err := scanner.Scan(
		&src.ID, &kind, &src.DisplayName, &src.LibraryDBPath, &src.Repo, &src.Ref, &src.DocsPath, &ingestMode,
		&src.VersionLabel, &src.RootURL, &allowPaths, &denyPaths, &src.MaxDepth, &src.MaxPages,
		&lastSyncAt, &src.LastCommit, &src.LastETag, &src.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	src.Kind = SourceKind(kind)
	src.IngestMode = IngestMode(ingestMode)
	if allowPaths != "" {
		src.AllowPaths = strings.Split(allowPaths, "\n")
	}
	if denyPaths != "" {
		src.DenyPaths = strings.Split(denyPaths, "\n")
	}
	if lastSyncAt.Valid {
		src.LastSyncAt, _ = time.Parse(time.RFC3339Nano, lastSyncAt.String)
	}
	src.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	src.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &src, nil
}

const sourceColumns = `
	id, kind, display_name, library_db_path, repo, ref, docs_path, ingest_mode, version_label,
	root_url, allow_paths, deny_paths, max_depth, max_pages,
	last_sync_at, last_commit, last_etag, last_error, created_at, updated_at`

func (s *SQLiteIndexStore) GetSource(ctx context.Context, id string) (*Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source %s not found", id)
	}
	return src, err
}

func (s *SQLiteIndexStore) ListSources(ctx context.Context) ([]*Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *SQLiteIndexStore) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_versions WHERE source_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndexStore) RecordSyncResult(ctx context.Context, id string, syncedAt time.Time, commit, etag, syncErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources SET last_sync_at = ?, last_commit = ?, last_etag = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		syncedAt.UTC().Format(time.RFC3339Nano), commit, etag, syncErr, time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

func (s *SQLiteIndexStore) UpsertSourceVersion(ctx context.Context, v *SourceVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.SyncedAt.IsZero() {
		v.SyncedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_versions(source_id, version_label, ref, commit_sha, tree_hash, etag, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, version_label) DO UPDATE SET
			ref = excluded.ref, commit_sha = excluded.commit_sha, tree_hash = excluded.tree_hash,
			etag = excluded.etag, synced_at = excluded.synced_at`,
		v.SourceID, v.VersionLabel, v.Ref, v.CommitSHA, v.TreeHash, v.ETag, v.SyncedAt.Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteIndexStore) GetSourceVersion(ctx context.Context, sourceID, versionLabel string) (*SourceVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v SourceVersion
	var syncedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT source_id, version_label, ref, commit_sha, tree_hash, etag, synced_at
		FROM source_versions WHERE source_id = ? AND version_label = ?`, sourceID, versionLabel).
		Scan(&v.SourceID, &v.VersionLabel, &v.Ref, &v.CommitSHA, &v.TreeHash, &v.ETag, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source version %s@%s not found", sourceID, versionLabel)
	}
	if err != nil {
		return nil, err
	}
	v.SyncedAt, _ = time.Parse(time.RFC3339Nano, syncedAt)
	return &v, nil
}

func (s *SQLiteIndexStore) ListSourceVersions(ctx context.Context, sourceID string) ([]*SourceVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, version_label, ref, commit_sha, tree_hash, etag, synced_at
		FROM source_versions WHERE source_id = ? ORDER BY version_label`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SourceVersion
	for rows.Next() {
		var v SourceVersion
		var syncedAt string
		if err := rows.Scan(&v.SourceID, &v.VersionLabel, &v.Ref, &v.CommitSHA, &v.TreeHash, &v.ETag, &syncedAt); err != nil {
			return nil, err
		}
		v.SyncedAt, _ = time.Parse(time.RFC3339Nano, syncedAt)
		out = append(out, &v)
	}
	return out, rows.Err()
}

func (s *SQLiteIndexStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
