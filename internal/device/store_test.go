package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tempkey-core/internal/replication"
)

// fakeReplicator records published content and returns a fixed status.
type fakeReplicator struct {
	mu       sync.Mutex
	status   replication.Status
	err      error
	contents [][]byte
}

func (f *fakeReplicator) Replicate(_ context.Context, content []byte) replication.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents = append(f.contents, append([]byte(nil), content...))
	return replication.Result{Status: f.status, Sink: "fake", Err: f.err}
}

func (f *fakeReplicator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contents)
}

func newTestStore(t *testing.T) (*Store, *fakeReplicator) {
	t.Helper()
	rep := &fakeReplicator{status: replication.StatusSynced}
	return NewStore(filepath.Join(t.TempDir(), "Tempkey.json"), rep), rep
}

func mustInsert(t *testing.T, s *Store, r Record) {
	t.Helper()
	if _, err := s.Insert(context.Background(), r); err != nil {
		t.Fatalf("Insert(%s): %v", r.ID, err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

// ============================================================================
// Load
// ============================================================================

func TestLoad_MissingFile(t *testing.T) {
	s, _ := newTestStore(t)

	records := s.Load()
	if records == nil || len(records) != 0 {
		t.Errorf("Load() = %v, want empty non-nil slice", records)
	}
}

func TestLoad_UnparsableFile(t *testing.T) {
	s, _ := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if got := s.Load(); len(got) != 0 {
		t.Errorf("Load() = %v, want empty", got)
	}
}

func TestLoad_ToleratesCommentsAndTrailingCommas(t *testing.T) {
	s, _ := newTestStore(t)
	content := `{
  // edited by hand
  "users": [
    {"id": "dev1", "username": "alice", "password": "p", "expire": "2030-01-01", "allowoffline": true,},
  ],
}`
	if err := os.WriteFile(s.Path(), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	got := s.Load()
	if len(got) != 1 || got[0].ID != "dev1" || !got[0].AllowOffline {
		t.Errorf("Load() = %+v", got)
	}
}

func TestLoad_NullUsers(t *testing.T) {
	s, _ := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(`{"users": null}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := s.Load(); got == nil || len(got) != 0 {
		t.Errorf("Load() = %v, want empty non-nil slice", got)
	}
}

// ============================================================================
// Persisted layout
// ============================================================================

func TestEncode_Layout(t *testing.T) {
	got, err := Encode([]Record{
		{ID: "dev1", Username: "a<b>&c", Password: "p@ss", Expire: "2030-01-01", AllowOffline: true},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := `{
  "users": [
    {
      "id": "dev1",
      "username": "a<b>&c",
      "password": "p@ss",
      "expire": "2030-01-01",
      "allowoffline": true
    }
  ]
}`
	if string(got) != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", got, want)
	}
}

func TestEncode_EscapesNonASCII(t *testing.T) {
	got, err := Encode([]Record{
		{ID: "ü-1", Username: "名前", Password: "😀", Expire: "2030-01-01"},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	want := `{
  "users": [
    {
      "id": "\u00fc-1",
      "username": "\u540d\u524d",
      "password": "\ud83d\ude00",
      "expire": "2030-01-01",
      "allowoffline": false
    }
  ]
}`
	if string(got) != want {
		t.Errorf("Encode() =\n%s\nwant\n%s", got, want)
	}
	for _, b := range got {
		if b >= 0x80 {
			t.Fatalf("Encode() wrote non-ASCII byte %#x", b)
		}
	}
}

func TestEncode_Empty(t *testing.T) {
	got, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(got) != "{\n  \"users\": []\n}" {
		t.Errorf("Encode(nil) = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	records := []Record{
		{ID: "b", Username: "bob", Password: "x", Expire: "2031-05-06"},
		{ID: "a", Username: "alice", Password: "p@ss,word", Expire: "2030-01-01", AllowOffline: true},
		{ID: "ü-ñ", Username: "名前", Password: `"quoted"`, Expire: "2029-12-31", AllowOffline: false},
	}

	data, err := Encode(records)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("len = %d, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i] != records[i] {
			t.Errorf("record %d = %+v, want %+v", i, got[i], records[i])
		}
	}
}

func TestPersist_FileMode(t *testing.T) {
	s, _ := newTestStore(t)
	mustInsert(t, s, Record{ID: "dev1", Expire: "2030-01-01"})

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != filePermissions {
		t.Errorf("file mode = %o, want %o", perm, filePermissions)
	}

	entries, _ := os.ReadDir(filepath.Dir(s.Path()))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the store file", len(entries))
	}
}

// ============================================================================
// Insert / Remove / Find
// ============================================================================

func TestInsert_Uniqueness(t *testing.T) {
	s, rep := newTestStore(t)
	ctx := context.Background()

	mustInsert(t, s, Record{ID: "dev1", Username: "alice", Expire: "2030-01-01"})
	before := readFile(t, s.Path())

	_, err := s.Insert(ctx, Record{ID: "dev1", Username: "mallory", Expire: "2031-01-01"})
	if !errors.Is(err, ErrRecordExists) {
		t.Fatalf("duplicate Insert error = %v, want ErrRecordExists", err)
	}
	if !bytes.Equal(before, readFile(t, s.Path())) {
		t.Error("duplicate insert changed the file")
	}
	if rep.calls() != 1 {
		t.Errorf("replicator called %d times, want 1", rep.calls())
	}

	seen := map[string]int{}
	for _, r := range s.List() {
		seen[r.ID]++
	}
	if seen["dev1"] != 1 {
		t.Errorf("dev1 appears %d times", seen["dev1"])
	}
}

func TestInsert_PreservesOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		mustInsert(t, s, Record{ID: id, Expire: "2030-01-01"})
	}

	got := s.List()
	for i, id := range ids {
		if got[i].ID != id {
			t.Errorf("List()[%d] = %q, want %q", i, got[i].ID, id)
		}
	}
	if s.Count() != 3 {
		t.Errorf("Count() = %d, want 3", s.Count())
	}
}

func TestInsert_RejectsInvalidRecord(t *testing.T) {
	s, rep := newTestStore(t)

	_, err := s.Insert(context.Background(), Record{ID: "dev2", Expire: "2024-13-40"})
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("Insert error = %v, want ErrInvalidFormat", err)
	}
	if _, statErr := os.Stat(s.Path()); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("invalid insert created the file")
	}
	if rep.calls() != 0 {
		t.Error("invalid insert triggered replication")
	}
}

func TestRemove_Absent(t *testing.T) {
	s, rep := newTestStore(t)
	mustInsert(t, s, Record{ID: "dev1", Expire: "2030-01-01"})
	before := readFile(t, s.Path())

	_, err := s.Remove(context.Background(), "ghost")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("Remove error = %v, want ErrRecordNotFound", err)
	}
	if !bytes.Equal(before, readFile(t, s.Path())) {
		t.Error("removing an absent id changed the file")
	}
	if rep.calls() != 1 {
		t.Errorf("replicator called %d times, want 1", rep.calls())
	}
}

func TestRemove_AllMatches(t *testing.T) {
	s, _ := newTestStore(t)
	// A hand-edited file may break the uniqueness invariant.
	content := `{"users":[{"id":"dup","expire":"2030-01-01"},{"id":"keep","expire":"2030-01-01"},{"id":"dup","expire":"2030-01-01"}]}`
	if err := os.WriteFile(s.Path(), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Remove(context.Background(), "dup"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got := s.List()
	if len(got) != 1 || got[0].ID != "keep" {
		t.Errorf("List() = %+v, want only keep", got)
	}
}

func TestStore_ReloadsFromDisk(t *testing.T) {
	s, _ := newTestStore(t)
	mustInsert(t, s, Record{ID: "dev1", Expire: "2030-01-01"})

	// An external edit is visible without restarting.
	content, _ := Encode([]Record{{ID: "external", Expire: "2030-01-01"}})
	if err := os.WriteFile(s.Path(), content, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Find("dev1"); ok {
		t.Error("Find returned a record no longer on disk")
	}
	if _, ok := s.Find("external"); !ok {
		t.Error("Find missed a record added on disk")
	}

	// A second Store over the same file sees the same records.
	other := NewStore(s.Path(), nil)
	if other.Count() != 1 {
		t.Errorf("fresh Store Count() = %d, want 1", other.Count())
	}
}

// ============================================================================
// Replication status
// ============================================================================

func TestPersist_ReplicationFailureKeepsLocalWrite(t *testing.T) {
	s, rep := newTestStore(t)
	rep.status = replication.StatusFailed
	rep.err = errors.New("push rejected")

	result, err := s.Insert(context.Background(), Record{ID: "dev1", Expire: "2030-01-01"})
	if err != nil {
		t.Fatalf("Insert returned error for a replication failure: %v", err)
	}
	if !result.Failed() {
		t.Errorf("Result.Status = %q, want failed", result.Status)
	}
	if _, ok := s.Find("dev1"); !ok {
		t.Error("local write lost after replication failure")
	}
	if s.LastReplication().Status != replication.StatusFailed {
		t.Errorf("LastReplication() = %q", s.LastReplication().Status)
	}
	if !bytes.Equal(rep.contents[0], readFile(t, s.Path())) {
		t.Error("replicated content differs from the file on disk")
	}
}

func TestPersist_NoReplicator(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "Tempkey.json"), nil)

	result, err := s.Insert(context.Background(), Record{ID: "dev1", Expire: "2030-01-01"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if result.Status != replication.StatusDisabled {
		t.Errorf("Status = %q, want disabled", result.Status)
	}
}

func TestPersist_LocalWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewStore(filepath.Join(blocker, "Tempkey.json"), &fakeReplicator{})

	if _, err := s.Insert(context.Background(), Record{ID: "dev1", Expire: "2030-01-01"}); err == nil {
		t.Fatal("Insert should fail when the directory cannot be created")
	}
}

// ============================================================================
// Concurrency and scenarios
// ============================================================================

func TestStore_ConcurrentInserts(t *testing.T) {
	s, _ := newTestStore(t)
	const n = 20

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Insert(context.Background(), Record{ID: fmt.Sprintf("dev%d", i), Expire: "2030-01-01"}); err != nil {
				t.Errorf("Insert: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if s.Count() != n {
		t.Errorf("Count() = %d, want %d (lost update)", s.Count(), n)
	}
}

// blockingReplicator holds Replicate until release receives or closes.
type blockingReplicator struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingReplicator) Replicate(ctx context.Context, _ []byte) replication.Result {
	close(b.entered)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return replication.Result{Status: replication.StatusSynced, Sink: "blocking"}
}

func TestStore_ReadsDoNotWaitForReplication(t *testing.T) {
	rep := &blockingReplicator{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewStore(filepath.Join(t.TempDir(), "Tempkey.json"), rep)

	inserted := make(chan error, 1)
	go func() {
		_, err := s.Insert(context.Background(), Record{ID: "dev1", Username: "alice", Expire: "2030-01-01"})
		inserted <- err
	}()
	<-rep.entered
	defer close(rep.release)

	type snapshot struct {
		count int
		found bool
		last  replication.Status
	}
	read := make(chan snapshot, 1)
	go func() {
		_, found := s.Find("dev1")
		read <- snapshot{count: s.Count(), found: found, last: s.LastReplication().Status}
	}()

	select {
	case got := <-read:
		if got.count != 1 || !got.found {
			t.Errorf("reads during replication = %+v, want the written record", got)
		}
		if got.last != replication.StatusDisabled {
			t.Errorf("LastReplication().Status = %q, want the previous result", got.last)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reads blocked while a replication was in flight")
	}

	rep.release <- struct{}{}
	if err := <-inserted; err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := s.LastReplication().Status; got != replication.StatusSynced {
		t.Errorf("LastReplication().Status after insert = %q, want synced", got)
	}
}

func TestScenario_AddFindDuplicateRemove(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := ParseRecord("dev1,alice,p@ss,2030-01-01,true")
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if _, err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, ok := s.Find("dev1")
	if !ok || got != rec {
		t.Fatalf("Find(dev1) = %+v, %v", got, ok)
	}

	if _, err := s.Insert(ctx, rec); !errors.Is(err, ErrRecordExists) {
		t.Fatalf("second Insert error = %v, want ErrRecordExists", err)
	}
	if _, err := s.Remove(ctx, "dev1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Find("dev1"); ok {
		t.Error("Find(dev1) after Remove should miss")
	}
}

func TestScenario_InvalidDateLeavesStoreEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := ParseRecord("dev2,bob,x,2024-13-40,false"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("ParseRecord error = %v, want ErrInvalidFormat", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count() = %d, want 0", s.Count())
	}
}
