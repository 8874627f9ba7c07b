// Package service wraps the backend's task and retrospective endpoints in
// cached queries and cache-invalidating mutations.
package service

import (
	"errors"
	"time"

	"github.com/kimhyun5u/MyPM/internal/cache"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

const (
	// TaskListStaleTime is how long a task list is served without a
	// background re-fetch.
	TaskListStaleTime = 30 * time.Second

	// RetrospectiveStaleTime is zero: a cached retrospective is always
	// revalidated in the background on the next read.
	RetrospectiveStaleTime time.Duration = 0
)

var ErrNoRetrospective = errors.New("no retrospective loaded for the selected date")

var (
	tasksRoot          = cache.Key{"tasks"}
	retrospectivesRoot = cache.Key{"retrospectives"}
)

// TaskListKey addresses one list query. The unfiltered list ("") is its own
// entry, distinct from every status filter.
func TaskListKey(filter models.TaskStatus) cache.Key {
	return cache.Key{"tasks", string(filter)}
}

// RetrospectiveKey addresses the retrospective for one date.
func RetrospectiveKey(date string) cache.Key {
	return cache.Key{"retrospectives", date}
}
