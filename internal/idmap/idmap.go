// Package idmap persists the stable profile ids assigned to each model name
// and to the home screen, so re-runs keep the same button addressing.
package idmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const legacyHomeKey = "Home"

type mapping struct {
	Home   string            `json:"home"`
	Models map[string]string `json:"models"`
}

// Store is the id mapping file. Every new id is written to disk before it
// is returned.
type Store struct {
	path string
	log  *logrus.Entry

	mu   sync.Mutex
	data mapping
}

// Open reads the mapping at path, creating it when missing and rewriting
// the old flat layout ({"Home": id, name: id, ...}) into the current one.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		log:  logrus.WithFields(logrus.Fields{"component": "idmap", "path": path}),
		data: mapping{Models: map[string]string{}},
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.data.Home = newID()
		s.log.Info("Creating id mapping file")
		return s, s.save()
	case err != nil:
		return nil, fmt.Errorf("read id mapping: %w", err)
	}

	migrated, err := s.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("parse id mapping %s: %w", path, err)
	}
	if s.data.Home == "" {
		s.data.Home = newID()
		migrated = true
	}
	if migrated {
		return s, s.save()
	}
	return s, nil
}

func (s *Store) decode(raw []byte) (bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, err
	}

	_, hasHome := fields["home"]
	_, hasModels := fields["models"]
	if hasHome || hasModels {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return false, err
		}
		if s.data.Models == nil {
			s.data.Models = map[string]string{}
		}
		return false, nil
	}

	for key, value := range fields {
		var id string
		if err := json.Unmarshal(value, &id); err != nil {
			return false, fmt.Errorf("legacy entry %q: %w", key, err)
		}
		if key == legacyHomeKey {
			s.data.Home = id
			continue
		}
		s.data.Models[key] = id
	}
	s.log.WithField("models", len(s.data.Models)).Info("Migrated legacy id mapping")
	return true, nil
}

// Path is the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Home returns the home profile id.
func (s *Store) Home() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Home
}

// ModelID returns the id for a model name, assigning and saving a new one
// the first time the name is seen.
func (s *Store) ModelID(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.data.Models[name]; ok {
		return id, nil
	}
	id := newID()
	s.data.Models[name] = id
	if err := s.save(); err != nil {
		delete(s.data.Models, name)
		return "", err
	}
	s.log.WithFields(logrus.Fields{"model": name, "id": id}).Debug("Assigned profile id")
	return id, nil
}

// Len is the number of models with an id.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.Models)
}

// save writes the mapping through a temp file so a crash never leaves a
// truncated file behind.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create id mapping folder: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write id mapping: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace id mapping: %w", err)
	}
	return nil
}

func newID() string {
	return strings.ToUpper(uuid.NewString())
}
