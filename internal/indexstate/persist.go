package indexstate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	ragerrors "github.com/ragline/ragline/internal/errors"
)

// Load reads a state file from disk. A missing file is not an error: it
// returns a fresh, empty State, matching the first-index case.
func Load(path string) (*State, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, ragerrors.Wrap(ragerrors.KindTransient, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, ragerrors.Corrupt("failed to read index state header", err)
		}
		return New(), nil
	}

	var h header
	if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
		return nil, ragerrors.Corrupt("index state header is not valid JSON", err)
	}
	if h.SchemaVersion != SchemaVersion {
		return nil, ragerrors.Corrupt(
			fmt.Sprintf("index state schema version %d is not supported (expected %d)", h.SchemaVersion, SchemaVersion),
			nil,
		)
	}

	st := New()
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec FileRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, ragerrors.Corrupt("index state record is not valid JSON", err)
		}
		st.Files[rec.Path] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, ragerrors.Corrupt("failed reading index state records", err)
	}

	return st, nil
}

// Save persists State atomically: write to a temp file in the same
// directory, fsync, then rename over the destination. Records are written
// sorted by path for a deterministic, diff-friendly file.
func Save(path string, st *State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)

	if err := enc.Encode(header{SchemaVersion: SchemaVersion}); err != nil {
		_ = tmp.Close()
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	paths := make([]string, 0, len(st.Files))
	for p := range st.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := enc.Encode(st.Files[p]); err != nil {
			_ = tmp.Close()
			return ragerrors.Wrap(ragerrors.KindFatal, err)
		}
	}

	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	if err := tmp.Close(); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return ragerrors.Wrap(ragerrors.KindFatal, err)
	}
	return nil
}
