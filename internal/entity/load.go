package entity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store is an in-memory snapshot of the entity files in one directory.
// It implements Source, ReminderMarker and ProblemReporter.
type Store struct {
	Dir string

	mu           sync.RWMutex
	docs         []Document
	observations map[string][]Observation
	actionFile   map[string]string
	problems     ValidationErrors
}

// ProblemReporter is implemented by sources that skipped invalid input while
// loading.
type ProblemReporter interface {
	Problems() ValidationErrors
}

// LoadFromDir loads and validates all area YAML files from dir.
// An existing but empty directory yields an empty store.
//
// A file that fails to read, parse or validate is skipped, as is a file that
// reuses an id already taken by an earlier file. In that case the returned
// store holds the remaining files and the error is the ValidationErrors
// describing what was skipped; the same list is available from Problems.
func LoadFromDir(dir string) (*Store, error) {
	if dir == "" {
		dir = "entities"
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("entities dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("entities path is not a directory: %s", dir)
	}

	var files []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("scan entities dir: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	var docs []Document
	var vErrs ValidationErrors
	for _, path := range files {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			vErrs = append(vErrs, ValidationError{File: path, Message: readErr.Error()})
			continue
		}
		doc, parseErr := ParseAndValidateDocument(data, path)
		if parseErr != nil {
			var ve ValidationErrors
			if errors.As(parseErr, &ve) {
				vErrs = append(vErrs, ve...)
			} else {
				vErrs = append(vErrs, ValidationError{File: path, Message: parseErr.Error()})
			}
			continue
		}
		docs = append(docs, doc)
	}
	docs, dupErrs := keepUnique(docs)
	vErrs = append(vErrs, dupErrs...)

	store := NewStore(docs)
	store.Dir = dir
	store.problems = vErrs
	if len(vErrs) > 0 {
		return store, vErrs
	}
	return store, nil
}

// DirLoader returns a Loader that re-reads dir on every call. Skipped files
// do not fail the load; they are reported through the store's Problems.
func DirLoader(dir string) Loader {
	return func(ctx context.Context) (Source, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		store, err := LoadFromDir(dir)
		if store == nil {
			return nil, err
		}
		return store, nil
	}
}

// Problems lists the files skipped while loading the store.
func (s *Store) Problems() ValidationErrors {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(ValidationErrors(nil), s.problems...)
}

// NewStore builds a store from already validated documents.
func NewStore(docs []Document) *Store {
	s := &Store{
		docs:         docs,
		observations: make(map[string][]Observation),
		actionFile:   make(map[string]string),
	}
	for _, doc := range docs {
		for _, obs := range doc.Observations {
			s.observations[obs.MetricID] = append(s.observations[obs.MetricID], obs)
		}
		for _, act := range doc.Actions {
			s.actionFile[act.ID] = doc.Source
		}
	}
	return s
}

// keepUnique drops every document that reuses an id claimed by an earlier
// document.
func keepUnique(docs []Document) ([]Document, ValidationErrors) {
	var errs ValidationErrors
	seen := make(map[string]string)
	kept := docs[:0:0]
	for _, doc := range docs {
		var conflicts ValidationErrors
		var keys []string
		check := func(kind, id string) {
			key := kind + "\x00" + id
			if prev, ok := seen[key]; ok {
				conflicts = append(conflicts, ValidationError{
					File:    doc.Source,
					Field:   kind,
					Message: fmt.Sprintf("duplicate %s id %q (also in %s)", kind, id, prev),
				})
				return
			}
			keys = append(keys, key)
		}
		check("area", doc.Area.ID)
		for _, m := range doc.Metrics {
			check("metric", m.ID)
		}
		for _, a := range doc.Actions {
			check("action", a.ID)
		}
		for _, g := range doc.Goals {
			check("goal", g.ID)
		}
		if len(conflicts) > 0 {
			errs = append(errs, conflicts...)
			continue
		}
		for _, key := range keys {
			seen[key] = doc.Source
		}
		kept = append(kept, doc)
	}
	return kept, errs
}

func (s *Store) ListAreas(_ context.Context) ([]Area, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Area, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc.Area)
	}
	return out, nil
}

func (s *Store) ListActions(_ context.Context, areaID string) ([]Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Action
	for _, doc := range s.docs {
		if areaID != "" && doc.Area.ID != areaID {
			continue
		}
		out = append(out, doc.Actions...)
	}
	return out, nil
}

func (s *Store) ListMetricDefinitions(_ context.Context, areaID string) ([]MetricDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []MetricDefinition
	for _, doc := range s.docs {
		if areaID != "" && doc.Area.ID != areaID {
			continue
		}
		out = append(out, doc.Metrics...)
	}
	return out, nil
}

func (s *Store) ListMetricObservations(_ context.Context, metricID string) ([]Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs := s.observations[metricID]
	out := make([]Observation, len(obs))
	copy(out, obs)
	return out, nil
}

func (s *Store) ListGoals(_ context.Context, areaID string) ([]Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Goal
	for _, doc := range s.docs {
		if areaID != "" && doc.Area.ID != areaID {
			continue
		}
		out = append(out, doc.Goals...)
	}
	return out, nil
}

// FindMetric looks up a metric definition by id across all areas.
func FindMetric(ctx context.Context, src Source, id string) (MetricDefinition, bool, error) {
	defs, err := src.ListMetricDefinitions(ctx, "")
	if err != nil {
		return MetricDefinition{}, false, err
	}
	id = strings.TrimSpace(id)
	for _, def := range defs {
		if def.ID == id {
			return def, true, nil
		}
	}
	return MetricDefinition{}, false, nil
}
