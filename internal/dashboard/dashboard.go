// Package dashboard composes the task board and the retrospective panel from
// the data services.
package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/internal/service"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

// View is everything the dashboard renders for one State.
type View struct {
	State    State
	Columns  []board.Column
	AllTasks []models.Task
	Retro    *models.Retrospective
	Attached []board.AttachedTask

	TasksErr error
	RetroErr error
}

// Tasks flattens the visible columns in display order.
func (v View) Tasks() []models.Task {
	var out []models.Task
	for _, c := range v.Columns {
		out = append(out, c.Tasks...)
	}
	return out
}

// Dashboard owns the view state and reads through the data services.
type Dashboard struct {
	Tasks  *service.Tasks
	Retros *service.Retrospectives
	State  State
}

func New(tasks *service.Tasks, retros *service.Retrospectives, now time.Time) *Dashboard {
	return &Dashboard{Tasks: tasks, Retros: retros, State: NewState(now)}
}

// Snapshot loads the view for the current state.
func (d *Dashboard) Snapshot(ctx context.Context) View {
	return Load(ctx, d.Tasks, d.Retros, d.State)
}

// Load reads the filtered task list, the unfiltered list for the panel and
// the retrospective for state.RetroDate concurrently. A failed section is
// recorded in the view instead of failing the whole load.
func Load(ctx context.Context, tasks *service.Tasks, retros *service.Retrospectives, state State) View {
	v := View{State: state}

	var (
		filtered, all []models.Task
		allErr        error
		wg            sync.WaitGroup
	)
	wg.Go(func() {
		filtered, v.TasksErr = tasks.List(ctx, state.StatusFilter)
	})
	wg.Go(func() {
		all, allErr = tasks.List(ctx, "")
	})
	wg.Go(func() {
		v.Retro, v.RetroErr = retros.GetByDate(ctx, state.RetroDate)
	})
	wg.Wait()

	if v.TasksErr == nil {
		v.Columns = board.Build(filtered, state.StatusFilter)
	}
	if allErr == nil {
		v.AllTasks = all
	} else if v.RetroErr == nil {
		v.RetroErr = allErr
	}
	if v.RetroErr == nil {
		v.Attached = board.ResolveAttached(v.Retro, v.AllTasks)
	}
	return v
}
