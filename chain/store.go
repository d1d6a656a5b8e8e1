package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for chain operations.
var (
	ErrChainNotFound = errors.New("chain not found")
	ErrChainExists   = errors.New("chain already exists")
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidID     = errors.New("invalid id: must be alphanumeric with hyphens, no path separators")
)

// idPattern validates chain ids: alphanumeric with hyphens, 1-64 chars.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]{0,63}$`)

// ValidateID checks that an id is safe for use in file paths.
func ValidateID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// NewChainID generates a fresh chain id.
func NewChainID() string {
	return "chain-" + uuid.NewString()[:8]
}

// newTaskID generates a fresh stable task id.
func newTaskID() string {
	return "task-" + uuid.NewString()[:8]
}

// Store provides file-backed chain documents, one JSON document per chain.
type Store struct {
	dir       string
	validator Validator
	logger    *slog.Logger
}

// NewStore creates a chain store rooted at dir. The validator, when set,
// gates chain completion; pass nil to defer validation to the caller.
func NewStore(dir string, validator Validator, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, validator: validator, logger: logger}
}

func (s *Store) chainPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// CreateChainInput is the caller-supplied part of a new chain.
type CreateChainInput struct {
	// ID is optional; a fresh id is generated when empty.
	ID        string
	RequestID string
	Type      Type
	DependsOn string

	SkipDesign              bool
	SkipDesignJustification string

	FileScope []string
	DesignDoc string
}

// CreateChain validates the design/implementation-dependency invariant and
// persists a new chain.
func (s *Store) CreateChain(input CreateChainInput) (*Chain, error) {
	id := input.ID
	if id == "" {
		id = NewChainID()
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	now := time.Now()
	c := &Chain{
		ID:                      id,
		RequestID:               input.RequestID,
		Type:                    input.Type,
		DependsOn:               input.DependsOn,
		SkipDesign:              input.SkipDesign,
		SkipDesignJustification: input.SkipDesignJustification,
		Status:                  StatusActive,
		FileScope:               append([]string(nil), input.FileScope...),
		DesignDoc:               input.DesignDoc,
		Tasks:                   []Task{},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := c.ValidateNew(); err != nil {
		return nil, err
	}

	// A declared dependency must point at a chain that exists.
	if c.DependsOn != "" {
		if _, err := s.GetChain(c.DependsOn); err != nil {
			return nil, &ValidationError{
				Field:   "depends_on",
				Message: fmt.Sprintf("dependency %q does not exist", c.DependsOn),
			}
		}
	}

	if _, err := os.Stat(s.chainPath(id)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrChainExists, id)
	}
	if err := s.save(c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetChain loads one chain document.
func (s *Store) GetChain(id string) (*Chain, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.chainPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrChainNotFound, id)
		}
		return nil, fmt.Errorf("failed to read chain: %w", err)
	}
	var c Chain
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse chain: %w", err)
	}
	return &c, nil
}

// ListChains returns every chain, optionally filtered by request id,
// sorted by creation time.
func (s *Store) ListChains(requestID string) ([]*Chain, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Chain{}, nil
		}
		return nil, fmt.Errorf("failed to read chains directory: %w", err)
	}

	var chains []*Chain
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		c, err := s.GetChain(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable chain",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()))
			continue
		}
		if requestID != "" && c.RequestID != requestID {
			continue
		}
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].CreatedAt.Before(chains[j].CreatedAt) })
	return chains, nil
}

// TaskInput is the caller-supplied part of a new task.
type TaskInput struct {
	Title       string
	Description string
	FileScope   []string
	Acceptance  []string

	// Ready skips the backlog and schedules the task immediately.
	Ready bool
}

// AddTask appends a task to a chain's ordered list.
func (s *Store) AddTask(chainID string, input TaskInput) (*Task, error) {
	if input.Title == "" {
		return nil, &ValidationError{Field: "title", Message: "task title is required"}
	}
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	if c.Status.Terminal() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("chain %s is %s", chainID, c.Status)}
	}

	now := time.Now()
	status := TaskBacklog
	if input.Ready {
		status = TaskTodo
	}
	task := Task{
		ID:          newTaskID(),
		ChainID:     chainID,
		Title:       input.Title,
		Description: input.Description,
		Status:      status,
		FileScope:   append([]string(nil), input.FileScope...),
		Acceptance:  append([]string(nil), input.Acceptance...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	c.Tasks = append(c.Tasks, task)
	if err := s.save(c); err != nil {
		return nil, err
	}
	return &task, nil
}

// ReorderTasks applies a new ordering. The ids must be a permutation of
// the chain's current task ids.
func (s *Store) ReorderTasks(chainID string, orderedIDs []string) (*Chain, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	if len(orderedIDs) != len(c.Tasks) {
		return nil, &ValidationError{
			Field:   "order",
			Message: fmt.Sprintf("expected %d task ids, got %d", len(c.Tasks), len(orderedIDs)),
		}
	}

	byID := make(map[string]*Task, len(c.Tasks))
	for i := range c.Tasks {
		byID[c.Tasks[i].ID] = &c.Tasks[i]
	}
	reordered := make([]Task, 0, len(orderedIDs))
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		task, ok := byID[id]
		if !ok {
			return nil, &ValidationError{Field: "order", Message: fmt.Sprintf("unknown task id %q", id)}
		}
		if seen[id] {
			return nil, &ValidationError{Field: "order", Message: fmt.Sprintf("duplicate task id %q", id)}
		}
		seen[id] = true
		reordered = append(reordered, *task)
	}

	c.Tasks = reordered
	if err := s.save(c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteTask removes a task from a chain.
func (s *Store) DeleteTask(chainID, taskID string) error {
	c, err := s.GetChain(chainID)
	if err != nil {
		return err
	}
	for i := range c.Tasks {
		if c.Tasks[i].ID == taskID {
			c.Tasks = append(c.Tasks[:i], c.Tasks[i+1:]...)
			return s.save(c)
		}
	}
	return fmt.Errorf("%w: %s in chain %s", ErrTaskNotFound, taskID, chainID)
}

// ReadyTask schedules a backlog task (backlog → todo).
func (s *Store) ReadyTask(chainID, taskID string) (*Task, error) {
	return s.transition(chainID, taskID, TaskBacklog, TaskTodo, "ready", nil)
}

// StartTask begins work on a scheduled task (todo → in-progress).
func (s *Store) StartTask(chainID, taskID string) (*Task, error) {
	return s.transition(chainID, taskID, TaskTodo, TaskInProgress, "start", nil)
}

// CompleteTask submits work for review (in-progress → in-review).
func (s *Store) CompleteTask(chainID, taskID string) (*Task, error) {
	return s.transition(chainID, taskID, TaskInProgress, TaskInReview, "complete", nil)
}

// ReworkTask sends reviewed work back (in-review → in-progress), recording
// the optional reason.
func (s *Store) ReworkTask(chainID, taskID, reason string) (*Task, error) {
	return s.transition(chainID, taskID, TaskInReview, TaskInProgress, "rework", func(t *Task) {
		t.ReworkReason = reason
		t.ReworkCount++
	})
}

// BlockTask stops a task on an impediment. Legal from any non-terminal state.
func (s *Store) BlockTask(chainID, taskID string) (*Task, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	task := c.Task(taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s in chain %s", ErrTaskNotFound, taskID, chainID)
	}
	if !task.Status.CanTransitionTo(TaskBlocked) {
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot block task in state %s", task.Status),
		}
	}
	task.Status = TaskBlocked
	task.UpdatedAt = time.Now()
	if err := s.save(c); err != nil {
		return nil, err
	}
	return task, nil
}

// UnblockTask recovers a blocked task. It always lands in todo, never in
// its pre-block state.
func (s *Store) UnblockTask(chainID, taskID string) (*Task, error) {
	return s.transition(chainID, taskID, TaskBlocked, TaskTodo, "unblock", nil)
}

// ApproveTask accepts reviewed work (in-review → done). When the approved
// task is the chain's last open task, the completion validation runs: if
// every required check passes the chain is marked done, otherwise the
// chain stays active and the returned result carries the diagnostics.
func (s *Store) ApproveTask(chainID, taskID string, acceptanceChecked bool) (*Task, *ValidationResult, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, nil, err
	}
	task := c.Task(taskID)
	if task == nil {
		return nil, nil, fmt.Errorf("%w: %s in chain %s", ErrTaskNotFound, taskID, chainID)
	}
	if task.Status != TaskInReview {
		return nil, nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot approve task in state %s, expected %s", task.Status, TaskInReview),
		}
	}

	now := time.Now()
	task.Status = TaskDone
	task.AcceptanceChecked = acceptanceChecked
	task.UpdatedAt = now

	var result *ValidationResult
	if c.AllTasksDone() {
		result = s.runValidation(c)
		if result.RequiredPassed() {
			c.Status = StatusDone
			s.logger.Debug("chain completed", slog.String("chain", chainID))
		} else {
			s.logger.Debug("chain completion blocked",
				slog.String("chain", chainID),
				slog.Int("failed_checks", len(result.FailedRequired())))
		}
	}

	if err := s.save(c); err != nil {
		return nil, nil, err
	}
	return task, result, nil
}

// RunValidation evaluates the completion checks for a chain without
// mutating it.
func (s *Store) RunValidation(chainID string) (*ValidationResult, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	return s.runValidation(c), nil
}

func (s *Store) runValidation(c *Chain) *ValidationResult {
	if s.validator == nil {
		return &ValidationResult{ChainID: c.ID, CheckedAt: time.Now()}
	}
	return s.validator.Validate(c)
}

// CompleteChain re-runs the completion checks and closes the chain when
// every required check passes. This is the recovery path when completion
// was blocked at final task approval and the failing checks have since
// been addressed.
func (s *Store) CompleteChain(chainID string) (*Chain, *ValidationResult, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, nil, err
	}
	if c.Status == StatusDone {
		return c, nil, nil
	}
	if c.Status.Terminal() {
		return nil, nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("chain %s is %s", chainID, c.Status),
		}
	}

	result := s.runValidation(c)
	if !result.RequiredPassed() {
		return c, result, nil
	}
	c.Status = StatusDone
	if err := s.save(c); err != nil {
		return nil, nil, err
	}
	s.logger.Debug("chain completed", slog.String("chain", chainID))
	return c, result, nil
}

// RecordCompletionNotes stores the chain's completion summary.
func (s *Store) RecordCompletionNotes(chainID, notes string) (*Chain, error) {
	return s.update(chainID, func(c *Chain) error {
		c.CompletionNotes = notes
		return nil
	})
}

// RecordCoverage stores a measured test coverage percentage.
func (s *Store) RecordCoverage(chainID string, coverage float64) (*Chain, error) {
	if coverage < 0 || coverage > 100 {
		return nil, &ValidationError{Field: "coverage", Message: "coverage must be between 0 and 100"}
	}
	return s.update(chainID, func(c *Chain) error {
		c.Coverage = coverage
		return nil
	})
}

// CancelChain abandons an active chain.
func (s *Store) CancelChain(chainID string) (*Chain, error) {
	return s.update(chainID, func(c *Chain) error {
		if c.Status.Terminal() {
			return &ValidationError{
				Field:   "status",
				Message: fmt.Sprintf("chain %s is already %s", chainID, c.Status),
			}
		}
		c.Status = StatusCancelled
		return nil
	})
}

// NextTask returns the first todo task in chain order, or nil when none
// is ready.
func (s *Store) NextTask(chainID string) (*Task, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	for i := range c.Tasks {
		if c.Tasks[i].Status == TaskTodo {
			task := c.Tasks[i]
			return &task, nil
		}
	}
	return nil, nil
}

// transition applies one guarded edge to a task, persisting all-or-nothing.
func (s *Store) transition(chainID, taskID string, from, to TaskStatus, name string, mutate func(*Task)) (*Task, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	task := c.Task(taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s in chain %s", ErrTaskNotFound, taskID, chainID)
	}
	if task.Status != from {
		return nil, &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot %s task in state %s, expected %s", name, task.Status, from),
		}
	}
	task.Status = to
	task.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(task)
	}
	if err := s.save(c); err != nil {
		return nil, err
	}
	return task, nil
}

// update loads, mutates and saves a chain.
func (s *Store) update(chainID string, mutate func(*Chain) error) (*Chain, error) {
	c, err := s.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	if err := mutate(c); err != nil {
		return nil, err
	}
	if err := s.save(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) save(c *Chain) error {
	c.UpdatedAt = time.Now()
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create chains directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain: %w", err)
	}
	if err := os.WriteFile(s.chainPath(c.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write chain: %w", err)
	}
	return nil
}
