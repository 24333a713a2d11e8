package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Mirror persists job records per kind across process restarts.
//
// Load never fails on corrupt data: it logs and returns an empty collection.
// Save replaces the whole collection for the kind.
type Mirror interface {
	Load(ctx context.Context, kind Kind) ([]Record, error)
	Save(ctx context.Context, kind Kind, records []Record) error
}

// mirrorVersion is written into every envelope so the shape can evolve.
const mirrorVersion = 1

// envelope is the on-disk document for one collection.
type envelope struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// EncodeCollection renders records as the versioned mirror document.
func EncodeCollection(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(envelope{Version: mirrorVersion, Records: records}, "", "  ")
}

// DecodeCollection parses a mirror document. It accepts the versioned
// envelope and, for data written before versioning, a bare JSON array.
func DecodeCollection(data []byte) ([]Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Version > mirrorVersion {
			return nil, fmt.Errorf("unsupported mirror version %d", env.Version)
		}
		return env.Records, nil
	}

	var bare []Record
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return bare, nil
}

// FileMirror stores one JSON document per kind in a directory.
type FileMirror struct {
	dir    string
	logger *slog.Logger
}

// Compile-time check that FileMirror implements Mirror.
var _ Mirror = (*FileMirror)(nil)

// NewFileMirror creates a mirror rooted at dir. The directory is created on
// first save.
func NewFileMirror(dir string, logger *slog.Logger) *FileMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileMirror{dir: dir, logger: logger}
}

// Dir returns the mirror's root directory.
func (m *FileMirror) Dir() string {
	return m.dir
}

func (m *FileMirror) path(kind Kind) string {
	return filepath.Join(m.dir, kind.Collection()+".json")
}

// Load reads the collection for kind.
func (m *FileMirror) Load(_ context.Context, kind Kind) ([]Record, error) {
	path := m.path(kind)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read mirror %s: %w", kind.Collection(), err)
	}
	if len(data) == 0 {
		return []Record{}, nil
	}

	records, err := DecodeCollection(data)
	if err != nil {
		m.logger.Warn("discarding unreadable mirror data", "collection", kind.Collection(), "path", path, "error", err)
		return []Record{}, nil
	}
	return records, nil
}

// Save atomically replaces the collection for kind.
func (m *FileMirror) Save(_ context.Context, kind Kind, records []Record) error {
	data, err := EncodeCollection(records)
	if err != nil {
		return fmt.Errorf("encode mirror %s: %w", kind.Collection(), err)
	}
	if err := writeFileAtomic(m.path(kind), data); err != nil {
		return fmt.Errorf("write mirror %s: %w", kind.Collection(), err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a half-written document.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// MemoryMirror keeps collections in memory. Used in tests and as a fallback
// when no durable backend is available.
type MemoryMirror struct {
	mu   sync.Mutex
	data map[Kind][]Record
}

// Compile-time check that MemoryMirror implements Mirror.
var _ Mirror = (*MemoryMirror)(nil)

// NewMemoryMirror creates an empty in-memory mirror.
func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{data: make(map[Kind][]Record)}
}

// Load returns a copy of the collection for kind.
func (m *MemoryMirror) Load(_ context.Context, kind Kind) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.data[kind]))
	copy(out, m.data[kind])
	return out, nil
}

// Save replaces the collection for kind with a copy of records.
func (m *MemoryMirror) Save(_ context.Context, kind Kind, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Record, len(records))
	copy(cp, records)
	m.data[kind] = cp
	return nil
}
