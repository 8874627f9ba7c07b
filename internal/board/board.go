// Package board derives the dashboard's board view from a task list.
package board

import "github.com/kimhyun5u/MyPM/pkg/models"

var labels = map[models.TaskStatus]string{
	models.TaskStatusTodo:       "To do",
	models.TaskStatusInProgress: "In progress",
	models.TaskStatusDone:       "Done",
	models.TaskStatusBlocked:    "Blocked",
}

// Label is the display name of a status column.
func Label(status models.TaskStatus) string {
	if l, ok := labels[status]; ok {
		return l
	}
	return string(status)
}

// Partition holds one bucket per status. Within a bucket tasks keep their
// input order.
type Partition struct {
	buckets map[models.TaskStatus][]models.Task
}

// Group partitions tasks by status. Every status has a bucket, possibly
// empty. Tasks with an unrecognised status are dropped.
func Group(tasks []models.Task) Partition {
	p := Partition{buckets: make(map[models.TaskStatus][]models.Task, len(models.TaskStatuses))}
	for _, s := range models.TaskStatuses {
		p.buckets[s] = []models.Task{}
	}
	for _, t := range tasks {
		if _, ok := p.buckets[t.Status]; !ok {
			continue
		}
		p.buckets[t.Status] = append(p.buckets[t.Status], t)
	}
	return p
}

func (p Partition) Bucket(status models.TaskStatus) []models.Task {
	return p.buckets[status]
}

func (p Partition) Count(status models.TaskStatus) int {
	return len(p.buckets[status])
}

func (p Partition) Total() int {
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

// Columns lists the statuses to render: all four for the empty filter,
// otherwise only the filtered one.
func Columns(filter models.TaskStatus) []models.TaskStatus {
	if filter == "" {
		return append([]models.TaskStatus(nil), models.TaskStatuses...)
	}
	return []models.TaskStatus{filter}
}

// Column is one rendered board column.
type Column struct {
	Status models.TaskStatus
	Label  string
	Tasks  []models.Task
}

// Build groups tasks and returns the columns visible under filter.
func Build(tasks []models.Task, filter models.TaskStatus) []Column {
	p := Group(tasks)
	var cols []Column
	for _, s := range Columns(filter) {
		cols = append(cols, Column{Status: s, Label: Label(s), Tasks: p.Bucket(s)})
	}
	return cols
}

// CanAttach reports whether the attach control is offered for task: a
// retrospective must be loaded and the task not already attached to it.
func CanAttach(task models.Task, retro *models.Retrospective) bool {
	return retro != nil && !task.AttachedTo(retro.ID)
}

// AttachedTask is one entry of a retrospective's task list. Missing is set
// when the id no longer matches a task.
type AttachedTask struct {
	ID      string
	Task    *models.Task
	Missing bool
}

// ResolveAttached looks up the retrospective's task ids in all, keeping the
// retrospective's order.
func ResolveAttached(retro *models.Retrospective, all []models.Task) []AttachedTask {
	if retro == nil {
		return nil
	}
	byID := make(map[string]*models.Task, len(all))
	for i := range all {
		byID[all[i].ID] = &all[i]
	}

	out := make([]AttachedTask, 0, len(retro.Tasks))
	for _, id := range retro.Tasks {
		t, ok := byID[id]
		out = append(out, AttachedTask{ID: id, Task: t, Missing: !ok})
	}
	return out
}
