package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation. A failed export
// never fails the write; it is passed to onError when that is not nil.
func (db *DB) EnableAutoSnapshot(path string, onError func(error)) {
	db.SetOnChange(func(ctx context.Context) {
		if err := db.ExportSnapshot(ctx, path); err != nil && onError != nil {
			onError(err)
		}
	})
}

// ExportSnapshot queries the v_snapshot_jsonl_lines view and writes the results
// to the given path atomically using a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	rows, err := db.QueryContext(ctx, `
		SELECT json_line
		FROM v_snapshot_jsonl_lines
		ORDER BY record_order, sort_name, sort_secondary
	`)
	if err != nil {
		return fmt.Errorf("failed to query snapshot lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("failed to scan snapshot line: %w", err)
		}
		if _, err := tempFile.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

type snapshotRetrospective struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Summary *string  `json:"summary"`
	Date    string   `json:"date"`
	Tasks   []string `json:"tasks"`
}

type snapshotTask struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     *string           `json:"description"`
	Status          models.TaskStatus `json:"status"`
	DueDate         *string           `json:"due_date"`
	RetrospectiveID *string           `json:"retrospective_id"`
}

// ImportSnapshot reads a JSONL snapshot and merges it into the database in
// one transaction. Retrospectives are matched by date and tasks by id;
// snapshot retrospective ids are mapped onto local ones.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	retroSnapshotIDToLocalID := make(map[string]string)
	retroDateMap := make(map[string]string)

	err = func() error {
		rows, err := tx.QueryContext(ctx, "SELECT id, date FROM retrospectives")
		if err != nil {
			return fmt.Errorf("failed to query retrospectives: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id, date string
			if err := rows.Scan(&id, &date); err != nil {
				return err
			}
			retroDateMap[date] = id
		}
		return rows.Err()
	}()
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var base struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(line, &base); err != nil {
			return fmt.Errorf("failed to unmarshal base record: %w", err)
		}

		switch base.RecordType {
		case "meta":
		case "retrospective":
			var r snapshotRetrospective
			if err := json.Unmarshal(line, &r); err != nil {
				return fmt.Errorf("failed to unmarshal retrospective: %w", err)
			}
			if !models.ValidDate(r.Date) {
				return fmt.Errorf("retrospective %s: %w", r.ID, models.ErrInvalidDate)
			}

			localID, exists := retroDateMap[r.Date]
			if exists {
				_, err = tx.ExecContext(ctx, `
					UPDATE retrospectives SET title = ?, summary = ?
					WHERE id = ?`,
					r.Title, r.Summary, localID)
			} else {
				if r.ID == "" {
					r.ID = uuid.New().String()
				}
				localID = r.ID
				_, err = tx.ExecContext(ctx, `
					INSERT INTO retrospectives (id, title, summary, date)
					VALUES (?, ?, ?, ?)`,
					r.ID, r.Title, r.Summary, r.Date)
			}
			if err != nil {
				return fmt.Errorf("failed to sync retrospective %s: %w", r.Date, err)
			}
			if r.ID != "" {
				retroSnapshotIDToLocalID[r.ID] = localID
			}
			retroDateMap[r.Date] = localID

			for _, taskID := range r.Tasks {
				_, err = tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO retrospective_tasks (retrospective_id, task_id, position)
					VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM retrospective_tasks WHERE retrospective_id = ?))`,
					localID, taskID, localID)
				if err != nil {
					return fmt.Errorf("failed to attach task %s to %s: %w", taskID, r.Date, err)
				}
			}

		case "task":
			var t snapshotTask
			if err := json.Unmarshal(line, &t); err != nil {
				return fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if t.ID == "" {
				t.ID = uuid.New().String()
			}
			if t.Status == "" {
				t.Status = models.TaskStatusTodo
			}

			var retroID *string
			if t.RetrospectiveID != nil {
				localID, ok := retroSnapshotIDToLocalID[*t.RetrospectiveID]
				if !ok {
					return fmt.Errorf("retrospective not found for task %s: %s", t.ID, *t.RetrospectiveID)
				}
				retroID = &localID
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO tasks (id, title, description, status, due_date, retrospective_id)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					title = excluded.title, description = excluded.description,
					status = excluded.status, due_date = excluded.due_date,
					retrospective_id = excluded.retrospective_id`,
				t.ID, t.Title, t.Description, t.Status, t.DueDate, retroID)
			if err != nil {
				return fmt.Errorf("failed to sync task %s: %w", t.ID, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	db.triggerChange(ctx)
	return nil
}
