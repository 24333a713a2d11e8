package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStore keeps binary job results (rendered reports) outside the mirror.
// The returned ref is stored in Record.ResultBlobRef.
type BlobStore interface {
	PutBlob(ctx context.Context, name string, data []byte) (ref string, err error)
	GetBlob(ctx context.Context, ref string) ([]byte, error)
}

// DirBlobs stores blobs as files in a directory; refs are absolute paths.
type DirBlobs struct {
	dir string
}

// NewDirBlobs creates a blob store rooted at dir.
func NewDirBlobs(dir string) *DirBlobs {
	return &DirBlobs{dir: dir}
}

// PutBlob writes data under a sanitized form of name.
func (b *DirBlobs) PutBlob(_ context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(b.dir, sanitizeBlobName(name))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	return path, nil
}

// GetBlob reads the blob at ref.
func (b *DirBlobs) GetBlob(_ context.Context, ref string) ([]byte, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func sanitizeBlobName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "blob"
	}
	return name
}

// MemoryBlobs keeps blobs in memory.
type MemoryBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryBlobs creates an empty in-memory blob store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

// PutBlob stores data; the ref is "mem:" + name.
func (b *MemoryBlobs) PutBlob(_ context.Context, name string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ref := "mem:" + name
	b.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

// GetBlob returns the blob stored under ref.
func (b *MemoryBlobs) GetBlob(_ context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", ref)
	}
	return data, nil
}
