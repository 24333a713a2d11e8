package state

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"
)

// AudioFile is an uploaded recording as remembered locally.
type AudioFile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type audioDocument struct {
	AudioFiles []AudioFile `json:"audioFiles"`
}

// AudioLibrary is the local list of uploaded files. Removing an entry never
// touches the server.
type AudioLibrary struct {
	path string
	mu   sync.Mutex
}

// NewAudioLibrary creates a library backed by path.
func NewAudioLibrary(path string) *AudioLibrary {
	return &AudioLibrary{path: path}
}

// List returns the files, newest first.
func (l *AudioLibrary) List() ([]AudioFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	files, err := l.load()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(files, func(a, b AudioFile) int {
		return b.UploadedAt.Compare(a.UploadedAt)
	})
	return files, nil
}

// Add records f, replacing any entry with the same id.
func (l *AudioLibrary) Add(f AudioFile) error {
	if f.ID == "" {
		return errors.New("add audio file: empty id")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	files, err := l.load()
	if err != nil {
		return err
	}
	files = slices.DeleteFunc(files, func(a AudioFile) bool { return a.ID == f.ID })
	return l.save(append(files, f))
}

// Get returns the file with id.
func (l *AudioLibrary) Get(id string) (AudioFile, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	files, err := l.load()
	if err != nil {
		return AudioFile{}, false, err
	}
	i := slices.IndexFunc(files, func(a AudioFile) bool { return a.ID == id })
	if i < 0 {
		return AudioFile{}, false, nil
	}
	return files[i], true, nil
}

// Remove drops the entry with id and reports whether it existed.
func (l *AudioLibrary) Remove(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	files, err := l.load()
	if err != nil {
		return false, err
	}
	n := len(files)
	files = slices.DeleteFunc(files, func(a AudioFile) bool { return a.ID == id })
	if len(files) == n {
		return false, nil
	}
	return true, l.save(files)
}

func (l *AudioLibrary) load() ([]AudioFile, error) {
	var doc audioDocument
	if err := readJSON(l.path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load audio library: %w", err)
	}
	return doc.AudioFiles, nil
}

func (l *AudioLibrary) save(files []AudioFile) error {
	if files == nil {
		files = []AudioFile{}
	}
	if err := writeJSON(l.path, audioDocument{AudioFiles: files}, 0o644); err != nil {
		return fmt.Errorf("save audio library: %w", err)
	}
	return nil
}
