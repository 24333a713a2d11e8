// Package prompts keeps the user's named report prompts in a YAML file.
package prompts

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// MinutesName is the saved name of the institutional minutes template.
const MinutesName = "minutes"

// MinutesTemplate is the fixed prompt that turns a transcript into formal
// meeting minutes.
//
//go:embed minutes.txt
var MinutesTemplate string

var (
	// ErrNotFound is returned when no prompt has the requested name.
	ErrNotFound = errors.New("prompt not found")
	// ErrExists is returned when adding a name that is already taken.
	ErrExists = errors.New("prompt already exists")
)

// Prompt is a named report instruction.
type Prompt struct {
	Name string `yaml:"name"`
	Text string `yaml:"text"`
}

// Defaults are written the first time the store is used.
func Defaults() []Prompt {
	return []Prompt{
		{Name: "summary", Text: "Sila ringkaskan mesyuarat ini dalam format yang mudah dibaca dengan tajuk utama dan butiran penting."},
		{Name: "actions", Text: "Senaraikan semua keputusan penting dan tindakan yang perlu diambil dari mesyuarat ini."},
		{Name: MinutesName, Text: strings.TrimSpace(MinutesTemplate)},
	}
}

type document struct {
	Prompts []Prompt `yaml:"prompts"`
}

// Store reads and writes the prompts file.
type Store struct {
	path string
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// List returns every saved prompt. A missing or empty file yields the defaults.
func (s *Store) List() ([]Prompt, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompts: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse prompts %s: %w", s.path, err)
	}
	if len(doc.Prompts) == 0 {
		return Defaults(), nil
	}
	return doc.Prompts, nil
}

// Get returns the prompt called name.
func (s *Store) Get(name string) (Prompt, error) {
	list, err := s.List()
	if err != nil {
		return Prompt{}, err
	}
	i := slices.IndexFunc(list, func(p Prompt) bool { return strings.EqualFold(p.Name, name) })
	if i < 0 {
		return Prompt{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return list[i], nil
}

// Add saves a new prompt.
func (s *Store) Add(name, text string) error {
	name, text = strings.TrimSpace(name), strings.TrimSpace(text)
	if name == "" || text == "" {
		return errors.New("prompt name and text are required")
	}
	list, err := s.List()
	if err != nil {
		return err
	}
	if slices.ContainsFunc(list, func(p Prompt) bool { return strings.EqualFold(p.Name, name) }) {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	return s.save(append(list, Prompt{Name: name, Text: text}))
}

// Remove deletes the prompt called name.
func (s *Store) Remove(name string) error {
	list, err := s.List()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(list, func(p Prompt) bool { return strings.EqualFold(p.Name, name) })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.save(slices.Delete(list, i, i+1))
}

func (s *Store) save(list []Prompt) error {
	data, err := yaml.Marshal(document{Prompts: list})
	if err != nil {
		return fmt.Errorf("encode prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create prompts dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write prompts: %w", err)
	}
	return nil
}
