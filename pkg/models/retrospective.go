package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Retrospective struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Summary *string  `json:"summary"`
	Date    string   `json:"date"`
	Tasks   []string `json:"tasks"`
}

// HasTask reports whether taskID is attached to the retrospective.
func (r Retrospective) HasTask(taskID string) bool {
	for _, id := range r.Tasks {
		if id == taskID {
			return true
		}
	}
	return false
}

// MarshalJSON keeps tasks as [] rather than null on the wire.
func (r Retrospective) MarshalJSON() ([]byte, error) {
	type alias Retrospective
	out := alias(r)
	if out.Tasks == nil {
		out.Tasks = []string{}
	}
	return json.Marshal(out)
}

// RetrospectiveCreate is the body of POST /retrospectives.
type RetrospectiveCreate struct {
	Title   string  `json:"title"`
	Summary *string `json:"summary"`
	Date    *string `json:"date"`
}

func (c RetrospectiveCreate) Normalize() RetrospectiveCreate {
	return RetrospectiveCreate{
		Title:   strings.TrimSpace(c.Title),
		Summary: NormalizeOptional(c.Summary),
		Date:    NormalizeOptional(c.Date),
	}
}

func (c RetrospectiveCreate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return ErrTitleRequired
	}
	if c.Date != nil && !ValidDate(*c.Date) {
		return fmt.Errorf("date: %w", ErrInvalidDate)
	}
	return nil
}
