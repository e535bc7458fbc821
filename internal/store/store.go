// Package store persists events and categories in a single JSON document.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	appLog "daycal/internal/log"
	"daycal/internal/model"
)

// ErrNotFound is returned for unknown event or category IDs.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when creating an ID that is already taken.
var ErrConflict = errors.New("store: already exists")

// document is the on-disk shape.
type document struct {
	Events     []model.Event    `json:"events"`
	Categories []model.Category `json:"categories"`
}

// Store is a concurrency-safe event and category store. Every mutation is
// written through to disk; an empty path keeps everything in memory.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  document
}

// Open loads the document at path, starting empty when it does not exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Info("store: starting with empty data file", "path", path)
			return s, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("store: corrupt JSON in %s: %w", path, err)
	}

	appLog.Info("store: loaded",
		"path", path,
		"events", len(s.doc.Events),
		"categories", len(s.doc.Categories),
	)
	return s, nil
}

// ListEvents returns copies of all events in insertion order.
func (s *Store) ListEvents() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0, len(s.doc.Events))
	for _, ev := range s.doc.Events {
		out = append(out, cloneEvent(ev))
	}
	return out
}

// GetEvent returns a copy of the event with the given ID.
func (s *Store) GetEvent(id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.eventIndex(id)
	if i < 0 {
		return model.Event{}, ErrNotFound
	}
	return cloneEvent(s.doc.Events[i]), nil
}

// CreateEvent validates and stores ev, assigning an ID when it has none.
func (s *Store) CreateEvent(ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eventIndex(ev.ID) >= 0 {
		return model.Event{}, fmt.Errorf("%w: event %s", ErrConflict, ev.ID)
	}
	s.doc.Events = append(s.doc.Events, cloneEvent(ev))
	if err := s.saveLocked(); err != nil {
		s.doc.Events = s.doc.Events[:len(s.doc.Events)-1]
		return model.Event{}, err
	}
	return cloneEvent(ev), nil
}

// UpdateEvent replaces the stored event with the same ID.
func (s *Store) UpdateEvent(ev model.Event) (model.Event, error) {
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	err := s.mutateEvent(ev.ID, func(stored *model.Event) error {
		*stored = cloneEvent(ev)
		return nil
	})
	if err != nil {
		return model.Event{}, err
	}
	return cloneEvent(ev), nil
}

// DeleteEvent removes the event with the given ID.
func (s *Store) DeleteEvent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.eventIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	prev := s.doc.Events
	s.doc.Events = slices.Delete(slices.Clone(prev), i, i+1)
	if err := s.saveLocked(); err != nil {
		s.doc.Events = prev
		return err
	}
	return nil
}

// SetException records an edit of a single occurrence. ex.Date must be the
// original scheduled date of that occurrence. An existing exception for the
// same date is replaced in place, otherwise ex is appended.
func (s *Store) SetException(eventID string, ex model.RecurringException) (model.Event, error) {
	if err := ex.Validate(); err != nil {
		return model.Event{}, err
	}

	var updated model.Event
	err := s.mutateEvent(eventID, func(stored *model.Event) error {
		if stored.Recurring == nil {
			return &model.ValidationError{Field: "recurring", Reason: "event does not recur"}
		}
		excs := stored.Recurring.Exceptions
		i := slices.IndexFunc(excs, func(e model.RecurringException) bool { return e.Date == ex.Date })
		if i >= 0 {
			excs[i] = ex
		} else {
			stored.Recurring.Exceptions = append(excs, ex)
		}
		updated = cloneEvent(*stored)
		return nil
	})
	return updated, err
}

// RemoveException drops the exception for date, restoring the generated
// occurrence. Removing a missing exception is not an error.
func (s *Store) RemoveException(eventID, date string) (model.Event, error) {
	var updated model.Event
	err := s.mutateEvent(eventID, func(stored *model.Event) error {
		if stored.Recurring != nil {
			stored.Recurring.Exceptions = slices.DeleteFunc(stored.Recurring.Exceptions,
				func(e model.RecurringException) bool { return e.Date == date })
		}
		updated = cloneEvent(*stored)
		return nil
	})
	return updated, err
}

// ListCategories returns all categories sorted by name.
func (s *Store) ListCategories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.doc.Categories)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateCategory stores c, assigning an ID when it has none.
func (s *Store) CreateCategory(c model.Category) (model.Category, error) {
	if c.Name == "" {
		return model.Category{}, &model.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.ContainsFunc(s.doc.Categories, func(x model.Category) bool { return x.ID == c.ID }) {
		return model.Category{}, fmt.Errorf("%w: category %s", ErrConflict, c.ID)
	}
	s.doc.Categories = append(s.doc.Categories, c)
	if err := s.saveLocked(); err != nil {
		s.doc.Categories = s.doc.Categories[:len(s.doc.Categories)-1]
		return model.Category{}, err
	}
	return c, nil
}

// DeleteCategory removes a category and detaches it from every event.
func (s *Store) DeleteCategory(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.doc.Categories, func(x model.Category) bool { return x.ID == id })
	if i < 0 {
		return ErrNotFound
	}

	prev := s.snapshotLocked()
	s.doc.Categories = slices.Delete(s.doc.Categories, i, i+1)
	for j := range s.doc.Events {
		if s.doc.Events[j].CategoryID == id {
			s.doc.Events[j].CategoryID = ""
		}
	}
	if err := s.saveLocked(); err != nil {
		s.doc = prev
		return err
	}
	return nil
}

func (s *Store) eventIndex(id string) int {
	return slices.IndexFunc(s.doc.Events, func(ev model.Event) bool { return ev.ID == id })
}

// mutateEvent applies fn to the stored event and persists it, rolling back
// when fn or the save fails.
func (s *Store) mutateEvent(id string, fn func(*model.Event) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.eventIndex(id)
	if i < 0 {
		return ErrNotFound
	}
	prev := cloneEvent(s.doc.Events[i])
	if err := fn(&s.doc.Events[i]); err != nil {
		s.doc.Events[i] = prev
		return err
	}
	if err := s.saveLocked(); err != nil {
		s.doc.Events[i] = prev
		return err
	}
	return nil
}

func (s *Store) snapshotLocked() document {
	snap := document{
		Events:     make([]model.Event, 0, len(s.doc.Events)),
		Categories: slices.Clone(s.doc.Categories),
	}
	for _, ev := range s.doc.Events {
		snap.Events = append(snap.Events, cloneEvent(ev))
	}
	return snap
}

// saveLocked writes the document atomically via a temp file and rename.
// Caller must hold s.mu.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}

	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".daycal-data-*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("store: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("store: rename temp file: %w", err)
	}
	return nil
}

// cloneEvent deep-copies the mutable parts of ev.
func cloneEvent(ev model.Event) model.Event {
	ev.Tags = slices.Clone(ev.Tags)
	if ev.Recurring != nil {
		r := *ev.Recurring
		r.DaysOfWeek = slices.Clone(r.DaysOfWeek)
		r.Exceptions = slices.Clone(r.Exceptions)
		if r.EndDate != nil {
			end := *r.EndDate
			r.EndDate = &end
		}
		ev.Recurring = &r
	}
	return ev
}
