package framequeue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Store keeps a queue in a YAML file so it survives between runs. Only
// positions are kept; frames captured in an earlier run are captured again
// at export time. A store holds the queue of one video at a time.
type Store struct {
	path string
}

type storedQueue struct {
	Source string       `yaml:"source"`
	Items  []storedItem `yaml:"items"`
}

type storedItem struct {
	Name       string    `yaml:"name,omitempty"`
	PositionMs int64     `yaml:"position_ms"`
	AddedAt    time.Time `yaml:"added_at"`
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load returns the stored queue of source. A missing file or a queue kept
// for another video yields an empty queue; stale reports the latter.
func (s *Store) Load(source string) (q *Queue, stale bool, err error) {
	q = New()
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return q, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read queue: %w", err)
	}

	var stored storedQueue
	if err := yaml.Unmarshal(data, &stored); err != nil {
		return nil, false, fmt.Errorf("parse queue %s: %w", s.path, err)
	}
	if stored.Source != source {
		return q, len(stored.Items) > 0, nil
	}
	for _, it := range stored.Items {
		q.Add(Item{
			Name:     it.Name,
			Position: time.Duration(it.PositionMs) * time.Millisecond,
			AddedAt:  it.AddedAt,
		})
	}
	return q, false, nil
}

// Save writes q as the queue of source. An empty queue removes the file.
func (s *Store) Save(source string, q *Queue) error {
	items := q.List()
	if len(items) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("clear queue: %w", err)
		}
		return nil
	}

	stored := storedQueue{Source: source, Items: make([]storedItem, len(items))}
	for i, it := range items {
		stored.Items[i] = storedItem{Name: it.Name, PositionMs: it.Position.Milliseconds(), AddedAt: it.AddedAt}
	}
	data, err := yaml.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return os.Rename(tmp, s.path)
}
