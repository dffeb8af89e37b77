// Package state persists per-session processing progress: how far into the
// transcript file processing got and the correlation context at that point.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/processor"
)

// SessionState is the snapshot saved after every processed batch.
type SessionState struct {
	FilePosition      int64
	LineNumber        int
	ProcessingContext *processor.Context
	LastModified      time.Time
}

type document struct {
	FilePosition      *int64             `json:"file_position"`
	LineNumber        *int               `json:"line_number"`
	ProcessingContext *processor.Context `json:"processing_context"`
	LastModified      *string            `json:"last_modified"`
}

// Store keeps one JSON document per session in a directory.
type Store struct {
	dir string
}

// NewStore creates the directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory holding the state files.
func (s *Store) Dir() string { return s.dir }

// Path returns the file a session's state is stored in.
func (s *Store) Path(sessionID string) string {
	return filepath.Join(s.dir, SanitizeID(sessionID)+".json")
}

// Save writes the state atomically: a crash mid-write leaves the previous
// snapshot in place.
func (s *Store) Save(sessionID string, st SessionState) error {
	ctx := st.ProcessingContext
	if ctx == nil {
		ctx = processor.NewContext()
	}
	modified := st.LastModified.Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(document{
		FilePosition:      &st.FilePosition,
		LineNumber:        &st.LineNumber,
		ProcessingContext: ctx,
		LastModified:      &modified,
	}, "", "  ")
	if err != nil {
		saveFailures.Inc()
		return fmt.Errorf("encode state: %w", err)
	}

	if err := writeFileAtomic(s.Path(sessionID), data); err != nil {
		saveFailures.Inc()
		return fmt.Errorf("save state for %s: %w", sessionID, err)
	}
	savesTotal.Inc()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load returns the saved state and true, or false when there is no usable
// state: the file is missing, unparseable, incomplete, or carries a bad
// timestamp. The caller starts fresh in every one of those cases.
func (s *Store) Load(sessionID string) (SessionState, bool) {
	path := s.Path(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			applog.Log.Warn("Cannot read session state", "session_id", sessionID, "error", err)
		}
		return SessionState{}, false
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		applog.Log.Warn("Discarding corrupt session state", "session_id", sessionID, "error", err)
		return SessionState{}, false
	}
	if doc.FilePosition == nil || doc.LineNumber == nil || doc.ProcessingContext == nil || doc.LastModified == nil {
		applog.Log.Warn("Discarding incomplete session state", "session_id", sessionID)
		return SessionState{}, false
	}
	modified, err := time.Parse(time.RFC3339Nano, *doc.LastModified)
	if err != nil {
		applog.Log.Warn("Discarding session state with bad timestamp", "session_id", sessionID, "error", err)
		return SessionState{}, false
	}

	return SessionState{
		FilePosition:      *doc.FilePosition,
		LineNumber:        *doc.LineNumber,
		ProcessingContext: doc.ProcessingContext,
		LastModified:      modified,
	}, true
}

// Delete removes the session's state. A missing file is not an error.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(s.Path(sessionID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete state for %s: %w", sessionID, err)
	}
	return nil
}

// Exists reports whether a state file is present for the session.
func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(s.Path(sessionID))
	return err == nil
}

// Sessions lists the sanitized ids of all stored sessions.
func (s *Store) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read state dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

const (
	sanitizeSeparator = '_'
	sanitizeFallback  = "session"
)

// SanitizeID maps a session id to a filesystem-safe token. Reserved and
// control characters become a single '_', runs of separators collapse,
// leading and trailing separators and dots are trimmed, and an id with
// nothing left becomes "session".
func SanitizeID(id string) string {
	var b strings.Builder
	lastSep := false
	for _, r := range id {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(`<>:"/\|?*`, r) || r == sanitizeSeparator {
			if !lastSep {
				b.WriteRune(sanitizeSeparator)
				lastSep = true
			}
			continue
		}
		b.WriteRune(r)
		lastSep = false
	}
	out := strings.Trim(b.String(), "_. ")
	if out == "" {
		return sanitizeFallback
	}
	return out
}

// Raw returns the stored document of a session as written.
func (s *Store) Raw(sessionID string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("read state for %s: %w", sessionID, err)
	}
	return data, nil
}
