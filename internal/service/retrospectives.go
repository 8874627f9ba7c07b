package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/kimhyun5u/MyPM/internal/api"
	"github.com/kimhyun5u/MyPM/internal/cache"
	"github.com/kimhyun5u/MyPM/internal/logging"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

// Retrospectives is the retrospective data service.
type Retrospectives struct {
	client *api.Client
	cache  *cache.Store
	logger *log.Logger
}

func NewRetrospectives(client *api.Client, store *cache.Store, logger *log.Logger) *Retrospectives {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Retrospectives{client: client, cache: store, logger: logger}
}

// GetByDate returns the retrospective for date, or nil when there is none.
// An empty date issues no request and also returns nil.
func (s *Retrospectives) GetByDate(ctx context.Context, date string) (*models.Retrospective, error) {
	if date == "" {
		return nil, nil
	}
	if !models.ValidDate(date) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidDate, date)
	}

	retro, err := cache.Fetch(ctx, s.cache, RetrospectiveKey(date), RetrospectiveStaleTime, func(ctx context.Context) (*models.Retrospective, error) {
		var retro *models.Retrospective
		if err := s.client.Get(ctx, api.PathEscape("retrospectives", "date", date), nil, &retro); err != nil {
			return nil, err
		}
		return retro, nil
	})
	if err != nil || retro == nil {
		return nil, err
	}
	out := *retro
	out.Tasks = slices.Clone(retro.Tasks)
	return &out, nil
}

// CreateOrUpdate always posts a new retrospective; whether the backend
// creates or merges is its decision. The cached entry for the date is
// invalidated so the authoritative copy is read back.
func (s *Retrospectives) CreateOrUpdate(ctx context.Context, in models.RetrospectiveCreate) (*models.Retrospective, error) {
	payload := in.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var retro models.Retrospective
	if err := s.client.Post(ctx, "/retrospectives", payload, &retro); err != nil {
		return nil, err
	}

	if payload.Date != nil {
		s.invalidateDate(*payload.Date)
	}
	if retro.Date != "" && (payload.Date == nil || retro.Date != *payload.Date) {
		s.invalidateDate(retro.Date)
	}
	return &retro, nil
}

// AttachTask links taskID to retrospectiveID. selectedDate is the date the
// dashboard is showing; its entry is the one invalidated. Task lists are
// invalidated too because the task's retrospective_id changes.
func (s *Retrospectives) AttachTask(ctx context.Context, selectedDate, retrospectiveID, taskID string) (*models.Retrospective, error) {
	if retrospectiveID == "" {
		return nil, ErrNoRetrospective
	}

	var retro models.Retrospective
	path := api.PathEscape("retrospectives", retrospectiveID, "tasks", taskID)
	if err := s.client.Post(ctx, path, nil, &retro); err != nil {
		return nil, err
	}

	if selectedDate != "" {
		s.invalidateDate(selectedDate)
	}
	s.cache.Invalidate(tasksRoot)
	return &retro, nil
}

func (s *Retrospectives) invalidateDate(date string) {
	n := s.cache.Invalidate(RetrospectiveKey(date))
	s.logger.Debug("retrospective invalidated", "date", date, "entries", n)
}

// InvalidateAll marks every cached retrospective for re-fetch.
func (s *Retrospectives) InvalidateAll() int {
	return s.cache.Invalidate(retrospectivesRoot)
}
