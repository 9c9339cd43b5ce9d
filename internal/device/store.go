package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tidwall/jsonc"

	"github.com/nerrad567/tempkey-core/internal/replication"
)

const (
	// filePermissions keeps plaintext passwords owner-readable only.
	filePermissions = 0o600

	dirPermissions = 0o750
)

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Replicator publishes the serialized file after a local write.
// *replication.Replicator satisfies this interface.
type Replicator interface {
	Replicate(ctx context.Context, content []byte) replication.Result
}

// Store is the file-backed list of approved devices.
//
// mu serialises load-modify-persist sequences, including the replication
// that follows a write. Reads take no lock: the file is only ever replaced
// by rename, so a reader sees either the old or the new content in full.
type Store struct {
	path       string
	replicator Replicator
	logger     Logger

	mu sync.Mutex

	lastMu sync.Mutex
	last   replication.Result
}

// NewStore returns a Store backed by the file at path. The file need not
// exist. A nil replicator disables replication.
func NewStore(path string, replicator Replicator) *Store {
	return &Store{
		path:       path,
		replicator: replicator,
		logger:     noopLogger{},
		last:       replication.Result{Status: replication.StatusDisabled},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file. A missing or unparsable file yields an empty slice;
// the problem is logged, never returned.
func (s *Store) Load() []Record {
	return s.load()
}

// Find returns the first record with id.
func (s *Store) Find(id string) (Record, bool) {
	for _, r := range s.load() {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// List returns every record in insertion order.
func (s *Store) List() []Record {
	return s.Load()
}

// Count returns the number of records on disk.
func (s *Store) Count() int {
	return len(s.Load())
}

// LastReplication returns the Result of the most recent completed persist.
// It does not wait for a replication in flight.
func (s *Store) LastReplication() replication.Result {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last
}

// Insert appends r and persists the file.
//
// Returns:
//   - replication.Result: outcome of the remote sync (zero on error)
//   - error: *FormatError, ErrRecordExists, or a local write failure
func (s *Store) Insert(ctx context.Context, r Record) (replication.Result, error) {
	if err := ValidateRecord(r); err != nil {
		return replication.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	for _, existing := range records {
		if existing.ID == r.ID {
			return replication.Result{}, fmt.Errorf("%w: %s", ErrRecordExists, r.ID)
		}
	}

	records = append(records, r)
	result, err := s.persist(ctx, records)
	if err != nil {
		return replication.Result{}, err
	}

	s.logger.Info("device added", "id", r.ID, "records", len(records), "replication", result.Status)
	return result, nil
}

// Remove deletes every record with id and persists the file. When no
// record matches, the file is left untouched.
//
// Returns:
//   - replication.Result: outcome of the remote sync (zero on error)
//   - error: ErrRecordNotFound or a local write failure
func (s *Store) Remove(ctx context.Context, id string) (replication.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return replication.Result{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	result, err := s.persist(ctx, kept)
	if err != nil {
		return replication.Result{}, err
	}

	s.logger.Info("device removed", "id", id, "records", len(kept), "replication", result.Status)
	return result, nil
}

// load reads and decodes the file. Mutations call it with s.mu held.
func (s *Store) load() []Record {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}
	}
	if err != nil {
		s.logger.Warn("reading device file failed, treating as empty", "path", s.path, "error", err)
		return []Record{}
	}

	records, err := Decode(data)
	if err != nil {
		s.logger.Warn("parsing device file failed, treating as empty", "path", s.path, "error", err)
		return []Record{}
	}
	return records
}

// persist must be called with s.mu held. The local write is atomic; a
// replication failure is reported only in the Result.
func (s *Store) persist(ctx context.Context, records []Record) (replication.Result, error) {
	content, err := Encode(records)
	if err != nil {
		return replication.Result{}, err
	}
	if err := writeFileAtomic(s.path, content); err != nil {
		return replication.Result{}, err
	}

	result := replication.Result{Status: replication.StatusDisabled}
	if s.replicator != nil {
		result = s.replicator.Replicate(ctx, content)
	}
	s.lastMu.Lock()
	s.last = result
	s.lastMu.Unlock()
	return result, nil
}

// Encode renders records in the file layout: two-space indent, HTML
// characters left unescaped, non-ASCII written as \uXXXX escapes, no
// trailing newline.
func Encode(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(storeFile{Users: records}); err != nil {
		return nil, fmt.Errorf("encoding device file: %w", err)
	}
	return escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// escapeNonASCII rewrites every non-ASCII rune as a lowercase \uXXXX
// escape, using a UTF-16 surrogate pair above the BMP. JSON output only
// carries non-ASCII inside string literals, so the result stays valid.
func escapeNonASCII(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		if data[0] < utf8.RuneSelf {
			out = append(out, data[0])
			data = data[1:]
			continue
		}
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
			continue
		}
		out = fmt.Appendf(out, `\u%04x`, r)
	}
	return out
}

// Decode parses the file layout. Comments and trailing commas are
// tolerated so hand-edited files still load.
func Decode(data []byte) ([]Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}

	var file storeFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return nil, fmt.Errorf("decoding device file: %w", err)
	}
	if file.Users == nil {
		file.Users = []Record{}
	}
	return file.Users, nil
}

// writeFileAtomic writes content to a temp file in the target directory
// and renames it over path.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating device file directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp device file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(content); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing temp device file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("syncing temp device file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp device file: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("setting device file permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing device file: %w", err)
	}
	return nil
}
