package service

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/kimhyun5u/MyPM/internal/api"
	"github.com/kimhyun5u/MyPM/internal/cache"
	"github.com/kimhyun5u/MyPM/internal/logging"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

// Tasks is the task data service.
type Tasks struct {
	client *api.Client
	cache  *cache.Store
	logger *log.Logger
}

func NewTasks(client *api.Client, store *cache.Store, logger *log.Logger) *Tasks {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tasks{client: client, cache: store, logger: logger}
}

// List returns the tasks, optionally only those with status filter. An
// empty filter lists every task. The slice is the caller's own copy.
func (s *Tasks) List(ctx context.Context, filter models.TaskStatus) ([]models.Task, error) {
	if filter != "" && !filter.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStatus, filter)
	}

	tasks, err := cache.Fetch(ctx, s.cache, TaskListKey(filter), TaskListStaleTime, func(ctx context.Context) ([]models.Task, error) {
		var query url.Values
		if filter != "" {
			query = url.Values{"status_filter": {string(filter)}}
		}
		var tasks []models.Task
		if err := s.client.Get(ctx, "/tasks", query, &tasks); err != nil {
			return nil, err
		}
		if tasks == nil {
			tasks = []models.Task{}
		}
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(tasks), nil
}

// Create adds a task. Title is required; absent optional fields are sent as
// explicit nulls.
func (s *Tasks) Create(ctx context.Context, in models.TaskCreate) (*models.Task, error) {
	payload := in.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var task models.Task
	if err := s.client.Post(ctx, "/tasks", payload, &task); err != nil {
		return nil, err
	}
	s.invalidate()
	return &task, nil
}

// Update applies a partial update. Fields left nil are not sent.
func (s *Tasks) Update(ctx context.Context, id string, in models.TaskUpdate) (*models.Task, error) {
	payload := in.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var task models.Task
	if err := s.client.Patch(ctx, api.PathEscape("tasks", id), payload, &task); err != nil {
		return nil, err
	}
	s.invalidate()
	return &task, nil
}

// SetStatus is Update with only the status field.
func (s *Tasks) SetStatus(ctx context.Context, id string, status models.TaskStatus) (*models.Task, error) {
	return s.Update(ctx, id, models.TaskUpdate{Status: &status})
}

func (s *Tasks) Delete(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, api.PathEscape("tasks", id)); err != nil {
		return err
	}
	s.invalidate()
	return nil
}

// invalidate drops every cached task list, whatever its filter.
func (s *Tasks) invalidate() {
	n := s.cache.Invalidate(tasksRoot)
	s.logger.Debug("task lists invalidated", "entries", n)
}

// InvalidateAll marks every cached task list for re-fetch.
func (s *Tasks) InvalidateAll() int {
	return s.cache.Invalidate(tasksRoot)
}
