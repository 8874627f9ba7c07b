package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// TaskStatuses lists every status in board order.
var TaskStatuses = []TaskStatus{
	TaskStatusTodo,
	TaskStatusInProgress,
	TaskStatusDone,
	TaskStatusBlocked,
}

var (
	ErrInvalidStatus = errors.New("invalid task status")
	ErrTitleRequired = errors.New("title is required")
)

// Valid reports whether s is one of the four recognized statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusBlocked:
		return true
	}
	return false
}

// ParseTaskStatus converts a wire value into a TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, error) {
	s := TaskStatus(strings.TrimSpace(value))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, value)
	}
	return s, nil
}

// UnmarshalJSON rejects anything outside the closed set of statuses.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, string(data))
	}
	parsed, err := ParseTaskStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description"`
	Status          TaskStatus `json:"status"`
	DueDate         *string    `json:"due_date"`
	RetrospectiveID *string    `json:"retrospective_id"`
}

// AttachedTo reports whether the task is linked to the given retrospective.
func (t Task) AttachedTo(retrospectiveID string) bool {
	return t.RetrospectiveID != nil && *t.RetrospectiveID == retrospectiveID
}

// TaskCreate is the body of POST /tasks. Optional fields are always sent,
// as an explicit null when absent.
type TaskCreate struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
}

// Normalize trims the title and collapses empty optionals to nil.
func (c TaskCreate) Normalize() TaskCreate {
	return TaskCreate{
		Title:       strings.TrimSpace(c.Title),
		Description: NormalizeOptional(c.Description),
		DueDate:     NormalizeOptional(c.DueDate),
	}
}

func (c TaskCreate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrTitleRequired
	}
	if c.DueDate != nil && !ValidDate(*c.DueDate) {
		return fmt.Errorf("due_date: %w", ErrInvalidDate)
	}
	return nil
}

// TaskUpdate is the body of PATCH /tasks/{id}. Nil fields are omitted and
// left unchanged by the backend.
type TaskUpdate struct {
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	DueDate     *string     `json:"due_date,omitempty"`
}

func (u TaskUpdate) Normalize() TaskUpdate {
	out := u
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		out.Title = &title
	}
	out.Description = NormalizeOptional(u.Description)
	out.DueDate = NormalizeOptional(u.DueDate)
	return out
}

func (u TaskUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return ErrTitleRequired
	}
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}
	if u.DueDate != nil && !ValidDate(*u.DueDate) {
		return fmt.Errorf("due_date: %w", ErrInvalidDate)
	}
	return nil
}

// Empty reports whether the update carries no fields at all.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.DueDate == nil
}
