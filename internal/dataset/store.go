package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/seantiz/crucible/internal/model"
)

// Store resolves a dataset identifier into tabular data.
type Store interface {
	Load(ctx context.Context, id string) (*Frame, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// DirStore loads datasets from <dir>/<id>.csv.
type DirStore struct {
	dir string
}

// NewDirStore creates a store rooted at dir, creating the directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Load reads and parses the dataset's CSV file. The first record is the header.
func (s *DirStore) Load(ctx context.Context, id string) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NotFoundf("dataset %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("open dataset %q: %w", id, err)
	}
	defer f.Close()

	frame, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", id, err)
	}
	return frame, nil
}

// Exists reports whether the dataset file is present without reading it.
func (s *DirStore) Exists(_ context.Context, id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat dataset %q: %w", id, err)
	}
	return true, nil
}

func (s *DirStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", model.Validationf("invalid dataset id %q", id)
	}
	return filepath.Join(s.dir, id+".csv"), nil
}

// ReadCSV parses a header row followed by data rows.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty csv: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return NewFrame(header, rows)
}

// MemoryStore holds datasets in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	frames map[string]*Frame
}

// NewMemoryStore creates an empty in-memory dataset store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{frames: make(map[string]*Frame)}
}

// Put registers a dataset under id.
func (s *MemoryStore) Put(id string, f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[id] = f
}

// Load returns the dataset registered under id.
func (s *MemoryStore) Load(_ context.Context, id string) (*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	if !ok {
		return nil, model.NotFoundf("dataset %q", id)
	}
	return f, nil
}

// Exists reports whether a dataset is registered under id.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.frames[id]
	return ok, nil
}
