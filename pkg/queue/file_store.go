package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const fileSnapshotVersion = 2

// fileSnapshot is the on-disk layout of a FileStore.
type fileSnapshot struct {
	Version int          `json:"version"`
	Records []fileRecord `json:"records"`
}

// fileRecord stores the payload as an opaque string so its bytes survive a
// round trip unchanged.
type fileRecord struct {
	ID            string    `json:"id"`
	Operation     Operation `json:"operation"`
	Resource      string    `json:"resource"`
	Payload       *string   `json:"payload,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	RetryCount    int       `json:"retry_count"`
	OwnerID       string    `json:"owner_id"`
	CredentialRef string    `json:"credential_ref"`
}

func toFileRecord(r Record) fileRecord {
	fr := fileRecord{
		ID:            r.ID,
		Operation:     r.Operation,
		Resource:      r.Resource,
		EnqueuedAt:    r.EnqueuedAt,
		RetryCount:    r.RetryCount,
		OwnerID:       r.OwnerID,
		CredentialRef: r.CredentialRef,
	}
	if r.Payload != nil {
		p := string(r.Payload)
		fr.Payload = &p
	}
	return fr
}

func (fr fileRecord) record() Record {
	r := Record{
		ID:            fr.ID,
		Operation:     fr.Operation,
		Resource:      fr.Resource,
		EnqueuedAt:    fr.EnqueuedAt,
		RetryCount:    fr.RetryCount,
		OwnerID:       fr.OwnerID,
		CredentialRef: fr.CredentialRef,
	}
	if fr.Payload != nil {
		r.Payload = json.RawMessage(*fr.Payload)
	}
	return r
}

// FileStore implements Store with a single JSON file. Every mutation rewrites
// the whole file through a temp file, fsync and rename, so a crash leaves
// either the old or the new snapshot on disk. Suitable for small queues.
type FileStore struct {
	path string
	opts Options

	mu      sync.Mutex
	ready   bool
	records map[string]Record
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore persisting to path.
func NewFileStore(path string, opts ...Option) *FileStore {
	return &FileStore{
		path: path,
		opts: BuildOptions(opts...),
	}
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return s.path
}

// Initialize loads the snapshot, creating the directory if needed.
func (s *FileStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	records, err := s.load()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// Probe write access up front so a read-only location fails here rather
	// than on the first enqueue.
	if err := s.persist(records); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	s.records = records
	s.ready = true
	return nil
}

// Add implements Store.
func (s *FileStore) Add(ctx context.Context, m Mutation) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return "", ErrNotInitialized
	}

	return AddWithRetry(s.opts.Generator, func(id string) error {
		if _, exists := s.records[id]; exists {
			return ErrWriteConflict
		}
		next := s.copyRecords()
		next[id] = NewRecord(id, m, s.opts.Clock.Now())
		return s.commit(next)
	})
}

// GetAll implements Store.
func (s *FileStore) GetAll(ctx context.Context) ([]Record, error) {
	return s.filter(func(Record) bool { return true })
}

// GetByOwner implements Store.
func (s *FileStore) GetByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	return s.filter(func(r Record) bool { return r.OwnerID == ownerID })
}

// Remove implements Store.
func (s *FileStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrNotInitialized
	}
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}

	next := s.copyRecords()
	delete(next, id)
	return s.commit(next)
}

// IncrementRetry implements Store.
func (s *FileStore) IncrementRetry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrNotInitialized
	}
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	next := s.copyRecords()
	rec.RetryCount++
	next[id] = rec
	return s.commit(next)
}

// Clear implements Store.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return ErrNotInitialized
	}
	return s.commit(make(map[string]Record))
}

// Stats implements Store.
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return Stats{}, ErrNotInitialized
	}

	var st Stats
	for _, r := range s.records {
		st.Total++
		if r.RetryCount == 0 {
			st.Pending++
		}
		if r.Exhausted(s.opts.MaxRetries) {
			st.FailedPermanently++
		}
	}
	return st, nil
}

// Close implements Store. The snapshot is already durable.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.records = nil
	return nil
}

func (s *FileStore) filter(keep func(Record) bool) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil, ErrNotInitialized
	}

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

// commit persists next and swaps it in only after the write is durable.
func (s *FileStore) commit(next map[string]Record) error {
	if err := s.persist(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

func (s *FileStore) copyRecords() map[string]Record {
	out := make(map[string]Record, len(s.records)+1)
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

func (s *FileStore) load() (map[string]Record, error) {
	records := make(map[string]Record)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return records, nil
		}
		return nil, err
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if snap.Version != fileSnapshotVersion {
		return nil, fmt.Errorf("decode %s: unsupported snapshot version %d", s.path, snap.Version)
	}
	for _, fr := range snap.Records {
		records[fr.ID] = fr.record()
	}
	return records, nil
}

func (s *FileStore) persist(records map[string]Record) error {
	sorted := make([]Record, 0, len(records))
	for _, r := range records {
		sorted = append(sorted, r)
	}
	sortRecords(sorted)

	snap := fileSnapshot{
		Version: fileSnapshotVersion,
		Records: make([]fileRecord, 0, len(sorted)),
	}
	for _, r := range sorted {
		snap.Records = append(snap.Records, toFileRecord(r))
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].EnqueuedAt.Equal(rs[j].EnqueuedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].EnqueuedAt.Before(rs[j].EnqueuedAt)
	})
}
