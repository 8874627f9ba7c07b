package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kimhyun5u/MyPM/pkg/models"
)

func TestAutoSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	snapshotPath := filepath.Join(t.TempDir(), "auto-snapshot.jsonl")
	db.EnableAutoSnapshot(snapshotPath, func(err error) {
		t.Errorf("Snapshot export failed: %v", err)
	})

	task, err := db.CreateTask(ctx, models.TaskCreate{Title: "Auto Task"})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
		t.Fatalf("Snapshot file was not created after CreateTask")
	}

	getModTime := func(path string) time.Time {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Failed to stat snapshot: %v", err)
		}
		return info.ModTime()
	}
	modTime1 := getModTime(snapshotPath)

	time.Sleep(10 * time.Millisecond)
	done := models.TaskStatusDone
	if _, err := db.UpdateTask(ctx, task.ID, models.TaskUpdate{Status: &done}); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	modTime2 := getModTime(snapshotPath)
	if !modTime2.After(modTime1) {
		t.Errorf("Snapshot file was not updated after UpdateTask")
	}

	time.Sleep(10 * time.Millisecond)
	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}
	modTime3 := getModTime(snapshotPath)
	if !modTime3.After(modTime2) {
		t.Errorf("Snapshot file was not updated after DeleteTask")
	}

	records := readSnapshotLines(t, snapshotPath)
	if len(records) != 1 {
		t.Errorf("Expected only the meta line after deleting the last task, got %d lines", len(records))
	}
}

func TestDisableOnChange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	changes := 0
	db.SetOnChange(func(ctx context.Context) { changes++ })

	db.DisableOnChange()
	if _, err := db.CreateTask(ctx, models.TaskCreate{Title: "quiet"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if changes != 0 {
		t.Errorf("Expected no notifications while disabled, got %d", changes)
	}

	db.EnableOnChange()
	if _, err := db.CreateTask(ctx, models.TaskCreate{Title: "loud"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if changes != 1 {
		t.Errorf("Expected one notification, got %d", changes)
	}
}
