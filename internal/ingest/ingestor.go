package ingest

import (
	"context"
	"fmt"
	"time"

	liberrors "github.com/go-librarian/librarian/internal/errors"
	"github.com/go-librarian/librarian/internal/store"
)

// breakerFailureThreshold opens a source's circuit after this many
// consecutive sync failures, per spec's flaky-source isolation.
const breakerFailureThreshold = 3

// breakerResetTimeout is how long a tripped source waits before a
// half-open retry is allowed again.
const breakerResetTimeout = 5 * time.Minute

func (ig *Ingestor) breakerFor(sourceID string) *liberrors.CircuitBreaker {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	if ig.breakers == nil {
		ig.breakers = make(map[string]*liberrors.CircuitBreaker)
	}
	if cb, ok := ig.breakers[sourceID]; ok {
		return cb
	}
	cb := liberrors.NewCircuitBreaker(sourceID,
		liberrors.WithMaxFailures(breakerFailureThreshold),
		liberrors.WithResetTimeout(breakerResetTimeout))
	ig.breakers[sourceID] = cb
	return cb
}

// Sync opens src's library database and runs its GitHub or web sync,
// recording the outcome (commit/etag/error) back on the Source row.
// force bypasses the "unchanged" short-circuit in both paths. A
// per-source file lock prevents two overlapping `librarian ingest`
// invocations from writing the same library database concurrently.
func (ig *Ingestor) Sync(ctx context.Context, src *store.Source, force bool, onProgress ProgressFunc) (*Result, error) {
	breaker := ig.breakerFor(src.ID)
	if !breaker.Allow() {
		return nil, fmt.Errorf("source %s: circuit open after repeated failures, skipping", src.ID)
	}

	lock := store.NewFileLock(src.LibraryDBPath + ".lock")
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("source %s: acquire ingest lock: %w", src.ID, err)
	}
	if !acquired {
		return nil, fmt.Errorf("source %s: another ingest is already running for this library", src.ID)
	}
	defer func() { _ = lock.Unlock() }()

	lib, err := ig.deps.OpenLibrary(src.LibraryDBPath)
	if err != nil {
		return nil, fmt.Errorf("open library %s: %w", src.LibraryDBPath, err)
	}
	defer lib.Close()

	var (
		result       *Result
		commit, etag string
		now          = time.Now().UTC()
	)

	switch src.Kind {
	case store.SourceKindGitHub:
		result, commit, etag, err = ig.syncGitHub(ctx, src, lib, breaker, force, onProgress)
	case store.SourceKindWeb:
		result, err = ig.syncWeb(ctx, src, lib, force, onProgress)
		commit, etag = src.LastCommit, src.LastETag
	default:
		err = fmt.Errorf("source %s: unknown kind %q", src.ID, src.Kind)
	}

	syncErr := ""
	if err != nil {
		breaker.RecordFailure()
		syncErr = err.Error()
	} else {
		breaker.RecordSuccess()
	}

	if recordErr := ig.deps.Index.RecordSyncResult(ctx, src.ID, now, commit, etag, syncErr); recordErr != nil {
		ig.deps.Logger.Warn("record sync result failed", "source", src.ID, "error", recordErr)
	}

	return result, err
}
