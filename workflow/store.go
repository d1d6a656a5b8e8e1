package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store persists workflows as one JSON document per workflow under a
// single directory. Writes are whole-document; callers serialize access
// per workflow id.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a workflow store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) workflowPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Create persists a new workflow document.
func (s *Store) Create(w *Workflow) error {
	if w.ID == "" {
		return &ValidationError{Field: "id", Message: "workflow id is required"}
	}
	if _, err := os.Stat(s.workflowPath(w.ID)); err == nil {
		return fmt.Errorf("%w: %s", ErrWorkflowExists, w.ID)
	}
	return s.save(w)
}

// Get loads a workflow by id.
func (s *Store) Get(id string) (*Workflow, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.workflowPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
		}
		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}
	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", id, err)
	}
	return &w, nil
}

// List returns all workflows, optionally filtered by request id, ordered
// by creation time. Unreadable documents are skipped with a warning so one
// corrupt file cannot hide the rest.
func (s *Store) List(requestID string) ([]*Workflow, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	var out []*Workflow
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		w, err := s.Get(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable workflow document",
				"file", entry.Name(), "error", err)
			continue
		}
		if requestID != "" && w.RequestID != requestID {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Save persists the workflow, refreshing its update timestamp.
func (s *Store) Save(w *Workflow) error {
	return s.save(w)
}

func (s *Store) save(w *Workflow) error {
	w.UpdatedAt = time.Now()
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", w.ID, err)
	}
	if err := os.WriteFile(s.workflowPath(w.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", w.ID, err)
	}
	return nil
}
