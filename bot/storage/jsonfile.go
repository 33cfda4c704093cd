package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// fileRecord mirrors the on-disk shape. The "timestamp" key keeps existing
// user_data.json files from earlier deployments readable.
type fileRecord struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FileStore persists records in a single JSON file keyed by decimal user id.
// Every operation reads the file fresh and every write lands atomically
// (temp file + fsync + rename), so state survives a crash right after Put.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store over the given path. The file is created on
// first Put; a missing file reads as an empty store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get returns the record for userID or ErrNotFound.
func (s *FileStore) Get(ctx context.Context, userID int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Record{}, err
	}
	fr, ok := data[key(userID)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return fr.toRecord(userID), nil
}

// Put upserts the full record.
func (s *FileStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key(rec.UserID)] = fileRecord{
		Name:      rec.Name,
		Phone:     rec.Phone,
		Timestamp: rec.CreatedAt,
	}
	return s.save(data)
}

// ListAll returns every stored record ordered by creation time, then user id.
func (s *FileStore) ListAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(data))
	for k, fr := range data {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			// Foreign key in the file, skip rather than fail the listing.
			continue
		}
		out = append(out, fr.toRecord(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// Delete removes the record for userID. Deleting an absent record is a no-op.
func (s *FileStore) Delete(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	k := key(userID)
	if _, ok := data[k]; !ok {
		return nil
	}
	delete(data, k)
	return s.save(data)
}

func (s *FileStore) load() (map[string]fileRecord, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]fileRecord), nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}
	data := make(map[string]fileRecord)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w", s.path, err)
	}
	return data, nil
}

func (s *FileStore) save(data map[string]fileRecord) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode records: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".user_data-*.json")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("storage: replace %s: %w", s.path, err)
	}
	return nil
}

func (fr fileRecord) toRecord(userID int64) Record {
	return Record{
		UserID:    userID,
		Name:      fr.Name,
		Phone:     fr.Phone,
		CreatedAt: fr.Timestamp,
	}
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
