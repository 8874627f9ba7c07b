package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kimhyun5u/MyPM/internal/api"
	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/internal/cache"
	"github.com/kimhyun5u/MyPM/internal/db"
	"github.com/kimhyun5u/MyPM/internal/server"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	tasks    *Tasks
	retros   *Retrospectives
	cache    *cache.Store
	db       *db.DB
	clock    *fakeClock
	requests atomic.Int32
}

// newHarness runs the reference backend on an in-memory database and points
// both services at it through one shared cache.
func newHarness(t *testing.T) *harness {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}

	h := &harness{
		db:    database,
		clock: &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	backend := server.NewServer(database, server.WithClock(h.clock.Now)).Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.requests.Add(1)
		backend.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	client, err := api.NewClient(ts.URL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	h.cache = cache.New(cache.WithClock(h.clock.Now))
	h.tasks = NewTasks(client, h.cache, nil)
	h.retros = NewRetrospectives(client, h.cache, nil)
	return h
}

func (h *harness) waitForRequests(t *testing.T, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.requests.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d requests, got %d", n, h.requests.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTaskLifecycleScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.tasks.Create(ctx, models.TaskCreate{Title: "Write report", DueDate: models.Ptr("2024-05-01")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	all, err := h.tasks.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected one task, got %d", len(all))
	}
	if all[0].Status != models.TaskStatusTodo || models.Deref(all[0].DueDate) != "2024-05-01" {
		t.Errorf("Unexpected task %+v", all[0])
	}

	if _, err := h.tasks.Update(ctx, created.ID, models.TaskUpdate{Status: models.Ptr(models.TaskStatusDone)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	done, err := h.tasks.List(ctx, models.TaskStatusDone)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(done) != 1 || done[0].ID != created.ID {
		t.Errorf("Expected the task under done, got %+v", done)
	}

	todo, err := h.tasks.List(ctx, models.TaskStatusTodo)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(todo) != 0 {
		t.Errorf("Expected no todo tasks, got %+v", todo)
	}
}

func TestRetrospectiveScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	date := "2024-05-01"

	got, err := h.retros.GetByDate(ctx, date)
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected no retrospective, got %+v", got)
	}

	saved, err := h.retros.CreateOrUpdate(ctx, models.RetrospectiveCreate{Title: "Retro", Date: &date})
	if err != nil {
		t.Fatalf("CreateOrUpdate failed: %v", err)
	}

	got, err = h.retros.GetByDate(ctx, date)
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if got == nil || got.Title != "Retro" || len(got.Tasks) != 0 {
		t.Fatalf("Expected empty retrospective titled Retro, got %+v", got)
	}

	task, err := h.tasks.Create(ctx, models.TaskCreate{Title: "Write report"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := h.retros.AttachTask(ctx, date, saved.ID, task.ID); err != nil {
		t.Fatalf("AttachTask failed: %v", err)
	}

	got, err = h.retros.GetByDate(ctx, date)
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0] != task.ID {
		t.Errorf("Expected tasks [%s], got %v", task.ID, got.Tasks)
	}
}

func TestCreateThenListIncludesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.tasks.List(ctx, ""); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	created, err := h.tasks.Create(ctx, models.TaskCreate{Title: "Buy milk"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	tasks, err := h.tasks.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	n := 0
	for _, tk := range tasks {
		if tk.ID == created.ID {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Expected the created task exactly once, got %d", n)
	}
}

func TestUpdateStatusMovesBucket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.tasks.Create(ctx, models.TaskCreate{Title: "Fix bug"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := h.tasks.List(ctx, models.TaskStatusBlocked); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if _, err := h.tasks.SetStatus(ctx, created.ID, models.TaskStatusBlocked); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	blocked, err := h.tasks.List(ctx, models.TaskStatusBlocked)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(blocked) != 1 || blocked[0].ID != created.ID {
		t.Fatalf("Expected task under blocked, got %+v", blocked)
	}

	all, err := h.tasks.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	p := board.Group(all)
	for _, s := range models.TaskStatuses {
		want := 0
		if s == models.TaskStatusBlocked {
			want = 1
		}
		if p.Count(s) != want {
			t.Errorf("Bucket %s: expected %d tasks, got %d", s, want, p.Count(s))
		}
	}
}

func TestDeleteThenListExcludes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.tasks.Create(ctx, models.TaskCreate{Title: "Old task"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := h.tasks.List(ctx, models.TaskStatusTodo); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if err := h.tasks.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, filter := range []models.TaskStatus{"", models.TaskStatusTodo} {
		tasks, err := h.tasks.List(ctx, filter)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, tk := range tasks {
			if tk.ID == created.ID {
				t.Errorf("Deleted task still listed under filter %q", filter)
			}
		}
	}
}

func TestTaskListCaching(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.tasks.List(ctx, ""); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if _, err := h.tasks.List(ctx, ""); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := h.requests.Load(); got != 1 {
		t.Errorf("Expected one request within stale time, got %d", got)
	}

	if _, err := h.tasks.List(ctx, models.TaskStatusDone); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := h.requests.Load(); got != 2 {
		t.Errorf("Expected the filtered list to be a separate entry, got %d requests", got)
	}

	h.clock.Advance(TaskListStaleTime)
	if _, err := h.tasks.List(ctx, ""); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	h.waitForRequests(t, 3)
}

func TestCachedResultsAreCopies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.tasks.Create(ctx, models.TaskCreate{Title: "Write report"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	first, err := h.tasks.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	first[0].Title = "changed by caller"

	second, err := h.tasks.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if second[0].Title != "Write report" {
		t.Errorf("Expected cached list untouched, got %q", second[0].Title)
	}

	date := "2024-05-01"
	if _, err := h.retros.CreateOrUpdate(ctx, models.RetrospectiveCreate{Title: "Good day", Date: &date}); err != nil {
		t.Fatalf("CreateOrUpdate failed: %v", err)
	}
	retro, err := h.retros.GetByDate(ctx, date)
	if err != nil || retro == nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	retro.Title = "changed by caller"
	retro.Tasks = append(retro.Tasks, "not-a-task")

	again, err := h.retros.GetByDate(ctx, date)
	if err != nil || again == nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if again.Title != "Good day" || len(again.Tasks) != 0 {
		t.Errorf("Expected cached retrospective untouched, got %+v", again)
	}
}

func TestValidationIssuesNoRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.tasks.Create(ctx, models.TaskCreate{Title: "   "}); !errors.Is(err, models.ErrTitleRequired) {
		t.Errorf("Expected ErrTitleRequired, got %v", err)
	}
	if _, err := h.tasks.List(ctx, "archived"); !errors.Is(err, models.ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
	if _, err := h.retros.GetByDate(ctx, "May 1"); !errors.Is(err, models.ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}
	if _, err := h.retros.AttachTask(ctx, "2024-05-01", "", "task"); !errors.Is(err, ErrNoRetrospective) {
		t.Errorf("Expected ErrNoRetrospective, got %v", err)
	}

	got, err := h.retros.GetByDate(ctx, "")
	if err != nil || got != nil {
		t.Errorf("Expected absent retrospective for empty date, got %+v, %v", got, err)
	}

	if n := h.requests.Load(); n != 0 {
		t.Errorf("Expected no requests, got %d", n)
	}
}

func TestFailedMutationLeavesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.tasks.List(ctx, ""); err != nil {
		t.Fatalf("List failed: %v", err)
	}

	_, err := h.tasks.Update(ctx, "missing", models.TaskUpdate{Title: models.Ptr("x")})
	if !errors.Is(err, api.ErrRequestFailed) {
		t.Fatalf("Expected ErrRequestFailed, got %v", err)
	}
	if state := h.cache.State(TaskListKey("")); state != cache.Fresh {
		t.Errorf("Expected list to stay fresh after a failed mutation, got %s", state)
	}
}

func TestCreateOrUpdateDefaultsDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.retros.GetByDate(ctx, "2024-05-01"); err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}

	saved, err := h.retros.CreateOrUpdate(ctx, models.RetrospectiveCreate{Title: "Today", Date: models.Ptr("  ")})
	if err != nil {
		t.Fatalf("CreateOrUpdate failed: %v", err)
	}
	if saved.Date != "2024-05-01" {
		t.Errorf("Expected backend to default the date, got %s", saved.Date)
	}
	if state := h.cache.State(RetrospectiveKey("2024-05-01")); state != cache.Invalidated {
		t.Errorf("Expected the response date invalidated, got %s", state)
	}

	got, err := h.retros.GetByDate(ctx, "2024-05-01")
	if err != nil || got == nil || got.Title != "Today" {
		t.Errorf("Expected the saved retrospective, got %+v, %v", got, err)
	}
}

func TestAttachInvalidatesSelectedDateAndTasks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	date := "2024-05-01"

	retro, err := h.retros.CreateOrUpdate(ctx, models.RetrospectiveCreate{Title: "Retro", Date: &date})
	if err != nil {
		t.Fatalf("CreateOrUpdate failed: %v", err)
	}
	task, err := h.tasks.Create(ctx, models.TaskCreate{Title: "Write report"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	loaded, err := h.retros.GetByDate(ctx, date)
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	tasks, err := h.tasks.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !board.CanAttach(tasks[0], loaded) {
		t.Fatalf("Expected task to be attachable before attaching")
	}

	if _, err := h.retros.AttachTask(ctx, date, retro.ID, task.ID); err != nil {
		t.Fatalf("AttachTask failed: %v", err)
	}
	if state := h.cache.State(RetrospectiveKey(date)); state != cache.Invalidated {
		t.Errorf("Expected selected date invalidated, got %s", state)
	}
	if state := h.cache.State(TaskListKey("")); state != cache.Invalidated {
		t.Errorf("Expected task lists invalidated, got %s", state)
	}

	loaded, err = h.retros.GetByDate(ctx, date)
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if !loaded.HasTask(task.ID) {
		t.Errorf("Expected retrospective to contain the task, got %v", loaded.Tasks)
	}
	tasks, err = h.tasks.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if board.CanAttach(tasks[0], loaded) {
		t.Errorf("Expected attach to be unavailable once attached")
	}
}

func TestBackendFailureIsRequestFailed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client, err := api.NewClient(ts.URL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	store := cache.New()
	tasks := NewTasks(client, store, nil)

	if _, err := tasks.List(context.Background(), ""); !errors.Is(err, api.ErrRequestFailed) {
		t.Errorf("Expected ErrRequestFailed, got %v", err)
	}
	if store.State(TaskListKey("")) != cache.Missing {
		t.Errorf("Expected failed fetch not to be cached")
	}
}
