package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ragline/ragline/internal/async"
	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/embedder"
	ragerrors "github.com/ragline/ragline/internal/errors"
	"github.com/ragline/ragline/internal/indexstate"
	"github.com/ragline/ragline/internal/keywordindex"
	"github.com/ragline/ragline/internal/scanner"
	"github.com/ragline/ragline/internal/symbols"
	"github.com/ragline/ragline/internal/vectorindex"
)

// IdleDeadline is the maximum time a catch-up run may go without making
// progress (indexing at least one file) before it aborts.
const IdleDeadline = 60 * time.Second

// Deps wires the stores an Incremental indexer reads and mutates
// together. None of these are owned by the indexer; it only orchestrates
// them.
type Deps struct {
	ProjectID string
	Root      string
	Scanner   *scanner.Scanner
	Keyword   keywordindex.Index
	Vector    vectorindex.Index
	Embedder  embedder.Embedder

	// Symbols is optional: a nil value means this project's catch-up
	// skips symbol extraction entirely (spec 4.12 treats SymbolIndex as
	// optional, refreshed in the same catch-up pass when present).
	Symbols *symbols.Index

	// Locker acquires the cross-process project-write lock for the
	// duration of a catch-up run, if set. Registry.AcquireWriteLock
	// satisfies this shape; a nil Locker means no lock is taken (tests,
	// or a registry-less single-project embedding of this package).
	Locker func(ctx context.Context, projectID string) (release func() error, err error)
}

// Incremental diffs the filesystem against internal/indexstate and
// brings the keyword/vector indexes up to date. Concurrent CatchUp calls
// coalesce into a single in-flight run; all callers receive that run's
// result.
type Incremental struct {
	deps  Deps
	state *indexstate.State

	group singleflight.Group

	progress *async.IndexProgress
}

// New constructs an Incremental indexer from a previously loaded state.
// Callers load/save the state file themselves (indexstate.Load/Save)
// since its lifetime spans many catch-up runs.
func New(deps Deps, state *indexstate.State) *Incremental {
	if state == nil {
		state = indexstate.New()
	}
	return &Incremental{deps: deps, state: state, progress: async.NewIndexProgress()}
}

// Progress returns the progress tracker for the most recent (or
// in-flight) run.
func (idx *Incremental) Progress() *async.IndexProgress {
	return idx.progress
}

// State returns the index's current state snapshot, safe to persist once
// CatchUp returns.
func (idx *Incremental) State() *indexstate.State {
	return idx.state
}

// catchUpKey is the singleflight key every CatchUp call shares: an
// Incremental indexes exactly one project, so there is never more than
// one distinct in-flight run to coalesce onto.
const catchUpKey = "catchup"

// CatchUp scans the project root, classifies every file against the
// stored state, and indexes adds/modifies/deletes. If a run is already
// in flight, the caller coalesces onto it via singleflight and receives
// its result instead of starting a second one.
func (idx *Incremental) CatchUp(ctx context.Context) (Result, error) {
	v, err, _ := idx.group.Do(catchUpKey, func() (interface{}, error) {
		result, err := idx.runCatchUp(ctx)
		return result, err
	})
	if v == nil {
		return Result{}, err
	}
	return v.(Result), err
}

func (idx *Incremental) runCatchUp(ctx context.Context) (result Result, err error) {
	start := time.Now()
	defer func() { result.DurationMs = time.Since(start).Milliseconds() }()

	if idx.deps.Locker != nil {
		release, lockErr := idx.deps.Locker(ctx, idx.deps.ProjectID)
		if lockErr != nil {
			return result, lockErr
		}
		defer func() { _ = release() }()
	}

	scanned, scannedSet, err := idx.scanFiles(ctx)
	if err != nil {
		return result, err
	}
	idx.progress.SetStage(async.StageChunking, len(scanned))

	lastProgress := time.Now()
	touch := func() { lastProgress = time.Now() }

	for _, path := range idx.state.Deletions(scannedSet) {
		if err := idx.removeFile(ctx, path); err != nil {
			result.FilesFailed++
			continue
		}
		idx.state.Remove(path)
		result.FilesDeleted++
		touch()
	}

	processed := 0
	for _, f := range scanned {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		if time.Since(lastProgress) > IdleDeadline {
			return result, errIdleTimeout
		}

		kind, hash, n, err := idx.indexFile(ctx, f)
		processed++
		idx.progress.UpdateFiles(processed)

		if err != nil {
			result.FilesFailed++
			continue
		}
		touch()

		switch kind {
		case indexstate.Added:
			result.FilesAdded++
		case indexstate.Modified:
			result.FilesModified++
		}
		result.ChunksIndexed += n
		idx.progress.UpdateChunks(result.ChunksIndexed)

		idx.state.Put(indexstate.FileRecord{
			Path:         f.Path,
			ModTimeNanos: f.ModTime.UnixNano(),
			Size:         f.Size,
			ContentHash:  hash,
			LastIndexed:  time.Now().UnixNano(),
			ChunkCount:   n,
		})
	}

	idx.progress.SetReady()
	return result, nil
}

func (idx *Incremental) scanFiles(ctx context.Context) ([]scanner.FileInfo, map[string]bool, error) {
	opts := &scanner.ScanOptions{RootDir: idx.deps.Root, RespectGitignore: true}
	ch, err := idx.deps.Scanner.Scan(ctx, opts)
	if err != nil {
		return nil, nil, ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	var files []scanner.FileInfo
	set := make(map[string]bool)
	for r := range ch {
		if r.Error != nil || r.File == nil {
			continue
		}
		files = append(files, *r.File)
		set[r.File.Path] = true
	}
	return files, set, nil
}

// indexFile classifies a single scanned file against the stored state
// and, if it changed, chunks/embeds/indexes it. On embedder failure the
// file's partial keyword/vector writes for this run are rolled back so
// the project's indexstate is never updated to reflect only half of a
// file's chunks.
func (idx *Incremental) indexFile(ctx context.Context, f scanner.FileInfo) (indexstate.ChangeKind, string, int, error) {
	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return 0, "", 0, ragerrors.Wrap(ragerrors.KindTransient, err)
	}

	hashOnce := func() (string, error) {
		sum := sha256.Sum256(content)
		return hex.EncodeToString(sum[:]), nil
	}

	kind, hash, err := idx.state.Classify(indexstate.ScannedFile{
		Path: f.Path, ModTimeNanos: f.ModTime.UnixNano(), Size: f.Size,
	}, hashOnce)
	if err != nil {
		return 0, "", 0, err
	}
	if kind == indexstate.Unchanged {
		return kind, hash, 0, nil
	}

	kchunker := chunker.KindCode
	if f.ContentType == scanner.ContentTypeMarkdown || f.ContentType == scanner.ContentTypeText {
		kchunker = chunker.KindDoc
	}
	chunks, err := chunker.Split(f.Path, content, kchunker)
	if err != nil {
		return 0, "", 0, ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	// Remove the file's previous chunks before writing new ones so
	// shrinking a file doesn't leave stale trailing chunks behind.
	if kind == indexstate.Modified {
		_ = idx.deps.Keyword.DeleteByPath(ctx, f.Path)
		idx.deleteVectorsForPath(ctx, f.Path)
	}

	// Symbol extraction is best-effort: a parse failure or an
	// unsupported language is logged and skipped, never fatal to the
	// catch-up run (spec 4.12).
	if idx.deps.Symbols != nil {
		_ = idx.deps.Symbols.RefreshFile(ctx, f.Path, content)
	}

	if len(chunks) == 0 {
		return kind, hash, 0, nil
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	docs := make([]keywordindex.Document, len(chunks))
	for i, c := range chunks {
		id := fmt.Sprintf("%s:%s:%d", idx.deps.ProjectID, f.Path, c.Ordinal)
		ids[i] = id
		texts[i] = c.Text
		docs[i] = keywordindex.Document{ID: id, Path: f.Path, Content: c.Text, StartLine: c.StartLine, EndLine: c.EndLine}
	}

	vectors, err := idx.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Nothing has been written to either index yet for this file;
		// rolling back means simply not calling Index/Add below.
		return 0, "", 0, err
	}

	if err := idx.deps.Keyword.Index(ctx, docs); err != nil {
		return 0, "", 0, err
	}
	if err := idx.deps.Vector.Add(ctx, ids, vectors); err != nil {
		// Roll back the keyword writes so the two stores don't diverge.
		_ = idx.deps.Keyword.DeleteByPath(ctx, f.Path)
		return 0, "", 0, err
	}

	return kind, hash, len(chunks), nil
}

func (idx *Incremental) removeFile(ctx context.Context, path string) error {
	if err := idx.deps.Keyword.DeleteByPath(ctx, path); err != nil {
		return err
	}
	idx.deleteVectorsForPath(ctx, path)
	if idx.deps.Symbols != nil {
		idx.deps.Symbols.RemoveFile(path)
	}
	return nil
}

// deleteVectorsForPath removes every vector belonging to path. The
// vector index has no DeleteByPath of its own (chunk-ids embed the path,
// but the index doesn't parse them), so the indexer does the filtering.
func (idx *Incremental) deleteVectorsForPath(ctx context.Context, path string) {
	prefix := idx.deps.ProjectID + ":" + path + ":"
	var toDelete []string
	for _, id := range idx.deps.Vector.AllIDs() {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			toDelete = append(toDelete, id)
		}
	}
	if len(toDelete) > 0 {
		_ = idx.deps.Vector.Delete(ctx, toDelete)
	}
}
