package models

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the wire format for due dates and retrospective dates.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

	// ErrNotFound is returned by stores for unknown task or retrospective ids.
	ErrNotFound = errors.New("not found")
)

// ValidDate reports whether s is a calendar date in DateLayout.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Today formats now as a wire date in now's location.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

// AddDays shifts a wire date by n days.
func AddDays(date string, n int) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.AddDate(0, 0, n).Format(DateLayout), nil
}

// NormalizeOptional maps "not provided" and "explicitly empty" onto nil.
// Non-empty values are returned trimmed.
func NormalizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns *v or the zero value.
func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}
