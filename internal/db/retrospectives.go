package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

const retrospectiveColumns = `id, title, summary, date`

func (db *DB) getRetrospective(ctx context.Context, exec executor, where string, arg any) (*models.Retrospective, error) {
	r := &models.Retrospective{}
	err := exec.QueryRowContext(ctx, `SELECT `+retrospectiveColumns+` FROM retrospectives WHERE `+where, arg).
		Scan(&r.ID, &r.Title, &r.Summary, &r.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retrospective: %w", err)
	}

	tasks, err := db.retrospectiveTaskIDs(ctx, exec, r.ID)
	if err != nil {
		return nil, err
	}
	r.Tasks = tasks
	return r, nil
}

func (db *DB) retrospectiveTaskIDs(ctx context.Context, exec executor, id string) ([]string, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT task_id FROM retrospective_tasks
		WHERE retrospective_id = ?
		ORDER BY position ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query retrospective tasks: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, fmt.Errorf("failed to scan retrospective task: %w", err)
		}
		ids = append(ids, taskID)
	}
	return ids, rows.Err()
}

// GetRetrospective returns the retrospective with the given id, or nil.
func (db *DB) GetRetrospective(ctx context.Context, id string) (*models.Retrospective, error) {
	return db.getRetrospective(ctx, db.DB, "id = ?", id)
}

// GetRetrospectiveByDate returns the retrospective for date, or nil.
func (db *DB) GetRetrospectiveByDate(ctx context.Context, date string) (*models.Retrospective, error) {
	return db.getRetrospective(ctx, db.DB, "date = ?", date)
}

// SaveRetrospective creates the retrospective for in.Date, or updates the
// title and summary of the existing one. Attached tasks are kept. in.Date
// must be set.
func (db *DB) SaveRetrospective(ctx context.Context, in models.RetrospectiveCreate) (*models.Retrospective, error) {
	in = in.Normalize()
	if in.Date == nil {
		return nil, fmt.Errorf("date: %w", models.ErrInvalidDate)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO retrospectives (id, title, summary, date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET title = excluded.title, summary = excluded.summary`,
		uuid.New().String(), in.Title, in.Summary, *in.Date)
	if err != nil {
		return nil, fmt.Errorf("failed to save retrospective: %w", err)
	}

	r, err := db.getRetrospective(ctx, tx, "date = ?", *in.Date)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit retrospective: %w", err)
	}

	db.triggerChange(ctx)
	return r, nil
}

// AttachTask links a task to a retrospective. The task id is appended to
// the retrospective's list if absent; a task attached elsewhere is moved.
func (db *DB) AttachTask(ctx context.Context, retrospectiveID, taskID string) (*models.Retrospective, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM retrospectives WHERE id = ?`, retrospectiveID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("retrospective %s: %w", retrospectiveID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get retrospective: %w", err)
	}

	task, err := db.getTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}

	if task.RetrospectiveID != nil && *task.RetrospectiveID != retrospectiveID {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM retrospective_tasks
			WHERE retrospective_id = ? AND task_id = ?`, *task.RetrospectiveID, taskID); err != nil {
			return nil, fmt.Errorf("failed to detach task from previous retrospective: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO retrospective_tasks (retrospective_id, task_id, position)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM retrospective_tasks WHERE retrospective_id = ?))`,
		retrospectiveID, taskID, retrospectiveID); err != nil {
		return nil, fmt.Errorf("failed to attach task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET retrospective_id = ? WHERE id = ?`, retrospectiveID, taskID); err != nil {
		return nil, fmt.Errorf("failed to update task retrospective: %w", err)
	}

	r, err := db.getRetrospective(ctx, tx, "id = ?", retrospectiveID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit attachment: %w", err)
	}

	db.triggerChange(ctx)
	return r, nil
}
