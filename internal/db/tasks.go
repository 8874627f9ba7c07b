package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

const taskColumns = `id, title, description, status, due_date, retrospective_id`

func scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	t := &models.Task{}
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate, &t.RetrospectiveID)
	return t, err
}

// CreateTask inserts a new task with status todo and a fresh UUID.
func (db *DB) CreateTask(ctx context.Context, in models.TaskCreate) (*models.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO tasks (id, title, description, status, due_date)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + taskColumns
	t, err := scanTask(db.QueryRowContext(ctx, query,
		uuid.New().String(), in.Title, in.Description, models.TaskStatusTodo, in.DueDate,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	db.triggerChange(ctx)
	return t, nil
}

// GetTask retrieves a task by its ID. It returns nil when there is none.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return db.getTask(ctx, db.DB, id)
}

func (db *DB) getTask(ctx context.Context, exec executor, id string) (*models.Task, error) {
	t, err := scanTask(exec.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks in creation order, optionally only those with the
// given status.
func (db *DB) ListTasks(ctx context.Context, status *models.TaskStatus) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}

	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// UpdateTask applies the non-nil fields of in. Unknown ids return
// models.ErrNotFound.
func (db *DB) UpdateTask(ctx context.Context, id string, in models.TaskUpdate) (*models.Task, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *in.Description)
	}
	if in.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *in.Status)
	}
	if in.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, *in.DueDate)
	}

	if len(sets) == 0 {
		t, err := db.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
		}
		return t, nil
	}

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") + ` WHERE id = ? RETURNING ` + taskColumns
	args = append(args, id)
	t, err := scanTask(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	db.triggerChange(ctx)
	return t, nil
}

// DeleteTask deletes a task by its ID. Deleting an unknown id is not an
// error.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		db.triggerChange(ctx)
	}
	return nil
}
