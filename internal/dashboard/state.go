package dashboard

import (
	"strings"
	"time"

	"github.com/kimhyun5u/MyPM/pkg/models"
)

// FilterAll is the user-facing name of the empty status filter.
const FilterAll = "all"

// State is the dashboard's local view state. Changing it never talks to
// the backend; it only selects which cached queries the next load reads.
type State struct {
	// StatusFilter is empty when every status is shown.
	StatusFilter models.TaskStatus
	RetroDate    string
}

// NewState selects every status and today's retrospective.
func NewState(now time.Time) State {
	return State{RetroDate: models.Today(now)}
}

// SetStatusFilter accepts "all" (or "") or one of the four statuses.
func (s *State) SetStatusFilter(value string) error {
	value = strings.TrimSpace(value)
	if value == "" || value == FilterAll {
		s.StatusFilter = ""
		return nil
	}
	status, err := models.ParseTaskStatus(value)
	if err != nil {
		return err
	}
	s.StatusFilter = status
	return nil
}

// CycleStatusFilter steps all → todo → in_progress → done → blocked → all.
func (s *State) CycleStatusFilter() {
	if s.StatusFilter == "" {
		s.StatusFilter = models.TaskStatuses[0]
		return
	}
	for i, st := range models.TaskStatuses {
		if st == s.StatusFilter {
			if i+1 < len(models.TaskStatuses) {
				s.StatusFilter = models.TaskStatuses[i+1]
			} else {
				s.StatusFilter = ""
			}
			return
		}
	}
	s.StatusFilter = ""
}

// SetRetroDate selects a date. An empty date disables the retrospective
// query.
func (s *State) SetRetroDate(date string) error {
	date = strings.TrimSpace(date)
	if date != "" && !models.ValidDate(date) {
		return models.ErrInvalidDate
	}
	s.RetroDate = date
	return nil
}

// ShiftRetroDate moves the selected date by days.
func (s *State) ShiftRetroDate(days int) error {
	if s.RetroDate == "" {
		return models.ErrInvalidDate
	}
	next, err := models.AddDays(s.RetroDate, days)
	if err != nil {
		return err
	}
	s.RetroDate = next
	return nil
}

// FilterLabel names the current filter for display.
func (s State) FilterLabel() string {
	if s.StatusFilter == "" {
		return FilterAll
	}
	return string(s.StatusFilter)
}
