package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// collection stores documents of type T as <root>/<dir>/<id>.json.
type collection[T any] struct {
	dir      string
	entity   string
	notFound error
	mu       sync.RWMutex
}

func newCollection[T any](root, dir, entity string, notFound error) *collection[T] {
	return &collection[T]{
		dir:      filepath.Join(root, dir),
		entity:   entity,
		notFound: notFound,
	}
}

// validateID validates that the id is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("id contains invalid characters")
	}

	return nil
}

func (c *collection[T]) path(id string) string {
	return filepath.Join(c.dir, id+".json")
}

func (c *collection[T]) get(id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.read(c.path(id))
}

func (c *collection[T]) read(path string) (*T, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from a validated id
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, c.notFound
		}

		return nil, fmt.Errorf("failed to read %s file: %w", c.entity, err)
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.entity, err)
	}

	return &doc, nil
}

func (c *collection[T]) put(id string, doc *T, createOnly bool) error {
	if err := validateID(id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.write(id, doc, createOnly)
}

// update replaces a document with the result of fn while holding the write
// lock. current is nil when the document does not exist yet.
func (c *collection[T]) update(id string, fn func(current *T) (*T, error)) error {
	if err := validateID(id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.read(c.path(id))
	if err != nil && !errors.Is(err, c.notFound) {
		return err
	}

	doc, err := fn(current)
	if err != nil {
		return err
	}

	return c.write(id, doc, false)
}

func (c *collection[T]) write(id string, doc *T, createOnly bool) error {
	if err := os.MkdirAll(c.dir, 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", c.entity, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", c.entity, id, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if createOnly {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(c.path(id), flags, 0600)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to write %s %s: %w", c.entity, id, err)
	}

	return f.Close()
}

func (c *collection[T]) remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return c.notFound
	}

	return err
}

// all returns every document; a missing directory is an empty collection.
func (c *collection[T]) all() ([]*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*T{}, nil
		}

		return nil, fmt.Errorf("failed to read %s directory: %w", c.entity, err)
	}

	docs := make([]*T, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		doc, err := c.read(filepath.Join(c.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}
