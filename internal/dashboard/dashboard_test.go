package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kimhyun5u/MyPM/internal/api"
	"github.com/kimhyun5u/MyPM/internal/cache"
	"github.com/kimhyun5u/MyPM/internal/db"
	"github.com/kimhyun5u/MyPM/internal/server"
	"github.com/kimhyun5u/MyPM/internal/service"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	dash *Dashboard
	fail atomic.Bool
}

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

	h := &harness{}
	backend := server.NewServer(database, server.WithClock(func() time.Time { return testNow })).Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		backend.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	client, err := api.NewClient(ts.URL)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	store := cache.New(cache.WithClock(func() time.Time { return testNow }))
	h.dash = New(service.NewTasks(client, store, nil), service.NewRetrospectives(client, store, nil), testNow)
	return h
}

func (h *harness) model() *Model {
	m := NewModel(context.Background(), h.dash, WithClock(func() time.Time { return testNow }))
	m.Update(tea.WindowSizeMsg{Width: 160, Height: 40})
	return m
}

func (h *harness) createTask(t *testing.T, title string) *models.Task {
	t.Helper()
	task, err := h.dash.Tasks.Create(context.Background(), models.TaskCreate{Title: title})
	if err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	return task
}

// run executes cmd and feeds every resulting message back into the model
// until nothing is left to do.
func run(m *Model, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			run(m, c)
		}
		return
	}
	_, next := m.Update(msg)
	run(m, next)
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(m *Model, msg tea.Msg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func TestStateStatusFilter(t *testing.T) {
	s := NewState(testNow)
	if s.RetroDate != "2024-05-01" || s.FilterLabel() != "all" {
		t.Fatalf("Unexpected initial state %+v", s)
	}

	if err := s.SetStatusFilter("done"); err != nil || s.StatusFilter != models.TaskStatusDone {
		t.Errorf("Expected done filter, got %q (%v)", s.StatusFilter, err)
	}
	if err := s.SetStatusFilter("archived"); err == nil {
		t.Errorf("Expected error for unknown status")
	}
	if s.StatusFilter != models.TaskStatusDone {
		t.Errorf("Expected filter unchanged after error")
	}
	if err := s.SetStatusFilter("all"); err != nil || s.StatusFilter != "" {
		t.Errorf("Expected all, got %q", s.StatusFilter)
	}

	want := []string{"todo", "in_progress", "done", "blocked", "all"}
	for _, w := range want {
		s.CycleStatusFilter()
		if s.FilterLabel() != w {
			t.Errorf("Expected %s, got %s", w, s.FilterLabel())
		}
	}
}

func TestStateRetroDate(t *testing.T) {
	s := NewState(testNow)

	if err := s.SetRetroDate("2024-13-01"); err != models.ErrInvalidDate {
		t.Errorf("Expected ErrInvalidDate, got %v", err)
	}
	if err := s.ShiftRetroDate(-1); err != nil || s.RetroDate != "2024-04-30" {
		t.Errorf("Expected 2024-04-30, got %s (%v)", s.RetroDate, err)
	}
	if err := s.SetRetroDate(""); err != nil {
		t.Fatalf("Failed to clear date: %v", err)
	}
	if err := s.ShiftRetroDate(1); err == nil {
		t.Errorf("Expected error shifting an empty date")
	}
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "Write report")

	v := h.dash.Snapshot(context.Background())
	if v.TasksErr != nil || v.RetroErr != nil {
		t.Fatalf("Unexpected errors: %v %v", v.TasksErr, v.RetroErr)
	}
	if len(v.Columns) != 4 {
		t.Errorf("Expected 4 columns, got %d", len(v.Columns))
	}
	if len(v.Tasks()) != 1 || len(v.AllTasks) != 1 {
		t.Errorf("Expected one task, got %+v", v.Tasks())
	}
	if v.Retro != nil {
		t.Errorf("Expected no retrospective, got %+v", v.Retro)
	}

	h.dash.State.SetRetroDate("")
	v = h.dash.Snapshot(context.Background())
	if v.Retro != nil || v.RetroErr != nil {
		t.Errorf("Expected disabled retrospective query, got %+v %v", v.Retro, v.RetroErr)
	}
}

func TestSnapshotRecordsFailuresPerSection(t *testing.T) {
	h := newHarness(t)
	h.fail.Store(true)

	v := h.dash.Snapshot(context.Background())
	if v.TasksErr == nil || v.RetroErr == nil {
		t.Errorf("Expected both sections to fail, got %v %v", v.TasksErr, v.RetroErr)
	}
	if v.Columns != nil {
		t.Errorf("Expected no columns on failure")
	}
}

func TestModelRendersBoard(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "Write report")
	h.createTask(t, "Call Bob")

	m := h.model()
	run(m, m.load())

	view := m.View()
	for _, want := range []string{"To do (2)", "Write report", "Call Bob", "In progress (0)", "No retrospective for this date", "filter: all"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestModelDropsStaleLoads(t *testing.T) {
	h := newHarness(t)
	m := h.model()

	first := send(m, key("f"))
	second := send(m, key("f"))
	if m.dash.State.StatusFilter != models.TaskStatusInProgress {
		t.Fatalf("Expected in_progress filter, got %q", m.dash.State.StatusFilter)
	}

	run(m, first)
	if m.loaded {
		t.Fatalf("Expected load for an old state to be dropped")
	}

	run(m, second)
	if !m.loaded || m.view.State.StatusFilter != models.TaskStatusInProgress {
		t.Fatalf("Expected current load applied, got %+v", m.view.State)
	}
	if len(m.view.Columns) != 1 || m.view.Columns[0].Status != models.TaskStatusInProgress {
		t.Errorf("Expected only the in_progress column, got %+v", m.view.Columns)
	}
}

func TestModelCreateTask(t *testing.T) {
	h := newHarness(t)
	m := h.model()
	run(m, m.load())

	send(m, key("n"))
	if m.mode != inputNewTask {
		t.Fatalf("Expected input mode")
	}
	send(m, key("Write report"))
	send(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != inputNewTaskDescription {
		t.Fatalf("Expected description step, got mode %d", m.mode)
	}
	send(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != inputNewTaskDue {
		t.Fatalf("Expected due date step, got mode %d", m.mode)
	}
	cmd := send(m, tea.KeyMsg{Type: tea.KeyEnter})
	if !m.busy {
		t.Errorf("Expected busy while creating")
	}
	run(m, cmd)

	if m.busy {
		t.Errorf("Expected busy cleared")
	}
	tasks := m.view.Tasks()
	if len(tasks) != 1 || tasks[0].Title != "Write report" {
		t.Fatalf("Expected created task on the board, got %+v", tasks)
	}
	if m.activity.Lines() != 1 {
		t.Errorf("Expected one activity line, got %d", m.activity.Lines())
	}
}

func TestModelCreateTaskRequiresTitle(t *testing.T) {
	h := newHarness(t)
	m := h.model()
	run(m, m.load())

	send(m, key("n"))
	if cmd := send(m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil || m.busy {
		t.Errorf("Expected no request for a blank title")
	}
	if m.errLine != "Title is required" {
		t.Errorf("Expected error line, got %q", m.errLine)
	}
	if m.mode != inputNewTask {
		t.Errorf("Expected the title input to stay open")
	}
	if len(m.view.Tasks()) != 0 {
		t.Errorf("Expected no tasks")
	}
}

func TestModelCreateTaskWithDetails(t *testing.T) {
	h := newHarness(t)
	m := h.model()
	run(m, m.load())

	send(m, key("n"))
	send(m, key("Write report"))
	send(m, tea.KeyMsg{Type: tea.KeyEnter})
	send(m, key("Quarterly numbers"))
	send(m, tea.KeyMsg{Type: tea.KeyEnter})

	send(m, key("tomorrow"))
	if cmd := send(m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil || m.busy {
		t.Fatalf("Expected an invalid due date to be refused before any request")
	}
	if m.errLine != "Due date must be YYYY-MM-DD" || m.mode != inputNewTaskDue {
		t.Fatalf("Expected due date error with the input open, got %q (mode %d)", m.errLine, m.mode)
	}

	m.input.SetValue("2024-05-03")
	run(m, send(m, tea.KeyMsg{Type: tea.KeyEnter}))

	tasks := m.view.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("Expected created task on the board, got %+v", tasks)
	}
	got := tasks[0]
	if got.Title != "Write report" || models.Deref(got.Description) != "Quarterly numbers" || models.Deref(got.DueDate) != "2024-05-03" {
		t.Errorf("Unexpected task %+v", got)
	}
	if m.errLine != "" {
		t.Errorf("Expected error line cleared, got %q", m.errLine)
	}
}

func TestModelDeleteAsksForConfirmation(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "Write report")
	m := h.model()
	run(m, m.load())

	if cmd := send(m, key("x")); cmd != nil {
		t.Fatalf("Expected x to ask before deleting")
	}
	if !strings.Contains(m.View(), `Delete "Write report"? y/n`) {
		t.Errorf("Expected confirmation prompt, got:\n%s", m.View())
	}
	if cmd := send(m, key("n")); cmd != nil {
		t.Errorf("Expected n to cancel")
	}
	if m.pendingDelete != nil || m.mode != inputNone {
		t.Errorf("Expected prompt dismissed without opening an input")
	}
	if len(m.view.Tasks()) != 1 {
		t.Fatalf("Expected task kept after cancel")
	}

	send(m, key("x"))
	run(m, send(m, key("y")))
	if len(m.view.Tasks()) != 0 {
		t.Errorf("Expected task deleted, got %+v", m.view.Tasks())
	}
}

func TestModelInputEscape(t *testing.T) {
	h := newHarness(t)
	m := h.model()

	send(m, key("n"))
	send(m, key("q"))
	if m.quitting {
		t.Fatalf("Expected q to be typed into the input")
	}
	send(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != inputNone || m.input.Value() != "" {
		t.Errorf("Expected input closed and cleared")
	}
}

func TestModelIgnoresMutationsWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "Write report")
	m := h.model()
	run(m, m.load())

	send(m, key("x"))
	cmd := send(m, key("y"))
	if cmd == nil {
		t.Fatalf("Expected delete command")
	}
	for _, k := range []string{"x", "s", "n"} {
		if send(m, key(k)) != nil {
			t.Errorf("Expected %q ignored while busy", k)
		}
	}
	if m.mode != inputNone || m.pendingDelete != nil {
		t.Errorf("Expected no input or prompt while busy")
	}

	run(m, cmd)
	if len(m.view.Tasks()) != 0 {
		t.Errorf("Expected task deleted, got %+v", m.view.Tasks())
	}
}

func TestModelAdvanceStatus(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "Write report")
	m := h.model()
	run(m, m.load())

	run(m, send(m, key("s")))

	for _, col := range m.view.Columns {
		want := 0
		if col.Status == models.TaskStatusInProgress {
			want = 1
		}
		if len(col.Tasks) != want {
			t.Errorf("Column %s: expected %d tasks, got %d", col.Status, want, len(col.Tasks))
		}
	}
}

func TestModelFailedMutationKeepsState(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "Write report")
	m := h.model()
	run(m, m.load())

	h.fail.Store(true)
	run(m, send(m, key("s")))

	if !strings.HasPrefix(m.errLine, "Failed to move") {
		t.Errorf("Expected error line, got %q", m.errLine)
	}
	if m.busy {
		t.Errorf("Expected busy cleared after failure")
	}
	if got := m.view.Tasks(); len(got) != 1 || got[0].Status != models.TaskStatusTodo {
		t.Errorf("Expected prior state kept, got %+v", got)
	}
	if !strings.Contains(m.View(), "Failed to move") {
		t.Errorf("Expected error line rendered")
	}
}

func TestModelLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.fail.Store(true)
	m := h.model()
	run(m, m.load())

	view := m.View()
	for _, want := range []string{"Failed to load tasks", "Failed to load retrospective"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q, got:\n%s", want, view)
		}
	}
}

func TestModelRetrospective(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "Write report")
	m := h.model()
	run(m, m.load())

	if send(m, key("a")) != nil {
		t.Errorf("Expected attach disabled without a retrospective")
	}
	if send(m, key("e")) != nil {
		t.Errorf("Expected summary editing disabled without a retrospective")
	}

	send(m, key("r"))
	send(m, key("Good day"))
	run(m, send(m, tea.KeyMsg{Type: tea.KeyEnter}))
	if m.view.Retro == nil || m.view.Retro.Title != "Good day" || m.view.Retro.Date != "2024-05-01" {
		t.Fatalf("Expected saved retrospective, got %+v", m.view.Retro)
	}

	send(m, key("e"))
	send(m, key("Shipped it"))
	run(m, send(m, tea.KeyMsg{Type: tea.KeyEnter}))
	if models.Deref(m.view.Retro.Summary) != "Shipped it" || m.view.Retro.Title != "Good day" {
		t.Fatalf("Expected summary saved with title kept, got %+v", m.view.Retro)
	}

	run(m, send(m, key("a")))
	if !m.view.Retro.HasTask(m.view.Tasks()[0].ID) {
		t.Fatalf("Expected task attached, got %+v", m.view.Retro)
	}
	if send(m, key("a")) != nil {
		t.Errorf("Expected attach disabled for an attached task")
	}
	if !strings.Contains(m.View(), "✓") {
		t.Errorf("Expected attached marker on the board")
	}
}

func TestModelRetrospectiveKeysFollowSelectedDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	task := h.createTask(t, "Write report")
	for date, in := range map[string]models.RetrospectiveCreate{
		"2024-05-01": {Title: "May 1"},
		"2024-05-02": {Title: "May 2", Summary: models.Ptr("may-2 notes")},
	} {
		in.Date = models.Ptr(date)
		if _, err := h.dash.Retros.CreateOrUpdate(ctx, in); err != nil {
			t.Fatalf("Failed to save retrospective: %v", err)
		}
	}

	m := h.model()
	run(m, m.load())
	if m.view.Retro == nil || m.view.Retro.Date != "2024-05-01" {
		t.Fatalf("Expected the 2024-05-01 retrospective, got %+v", m.view.Retro)
	}

	pending := send(m, key("]"))
	if m.dash.State.RetroDate != "2024-05-02" {
		t.Fatalf("Expected 2024-05-02, got %s", m.dash.State.RetroDate)
	}
	for _, k := range []string{"a", "r", "e"} {
		if send(m, key(k)) != nil || m.mode != inputNone {
			t.Errorf("Expected %q disabled until the selected date has loaded", k)
		}
	}

	run(m, pending)
	if m.view.Retro == nil || m.view.Retro.Date != "2024-05-02" {
		t.Fatalf("Expected the 2024-05-02 retrospective, got %+v", m.view.Retro)
	}

	send(m, key("r"))
	if m.mode != inputRetroTitle || m.input.Value() != "May 2" {
		t.Fatalf("Expected title input prefilled for 2024-05-02, got %q", m.input.Value())
	}
	m.input.SetValue("Renamed")
	run(m, send(m, tea.KeyMsg{Type: tea.KeyEnter}))
	if m.view.Retro.Title != "Renamed" || models.Deref(m.view.Retro.Summary) != "may-2 notes" {
		t.Errorf("Expected title changed with summary kept, got %+v", m.view.Retro)
	}

	run(m, send(m, key("a")))
	if !m.view.Retro.HasTask(task.ID) {
		t.Errorf("Expected task attached to 2024-05-02, got %+v", m.view.Retro)
	}
	first, err := h.dash.Retros.GetByDate(ctx, "2024-05-01")
	if err != nil || first == nil {
		t.Fatalf("Failed to read 2024-05-01: %v", err)
	}
	if first.HasTask(task.ID) {
		t.Errorf("Expected 2024-05-01 untouched, got %+v", first.Tasks)
	}
}

func TestModelRetrospectiveKeysDisabledAfterFailedLoad(t *testing.T) {
	h := newHarness(t)
	date := "2024-05-01"
	if _, err := h.dash.Retros.CreateOrUpdate(context.Background(), models.RetrospectiveCreate{Title: "May 1", Date: &date}); err != nil {
		t.Fatalf("Failed to save retrospective: %v", err)
	}
	m := h.model()
	run(m, m.load())

	h.fail.Store(true)
	run(m, send(m, key("g")))
	for _, k := range []string{"r", "e", "a"} {
		if send(m, key(k)) != nil || m.mode != inputNone {
			t.Errorf("Expected %q disabled after a failed load", k)
		}
	}
}

func TestModelDateNavigation(t *testing.T) {
	h := newHarness(t)
	m := h.model()

	tests := []struct {
		key  string
		want string
	}{
		{"[", "2024-04-30"},
		{"[", "2024-04-29"},
		{"t", "2024-05-01"},
		{"]", "2024-05-02"},
	}
	for _, tt := range tests {
		if send(m, key(tt.key)) == nil {
			t.Errorf("Expected %q to trigger a load", tt.key)
		}
		if m.dash.State.RetroDate != tt.want {
			t.Errorf("After %q: expected %s, got %s", tt.key, tt.want, m.dash.State.RetroDate)
		}
	}
}

func TestModelCursor(t *testing.T) {
	h := newHarness(t)
	h.createTask(t, "one")
	h.createTask(t, "two")
	m := h.model()
	run(m, m.load())

	send(m, key("j"))
	send(m, key("j"))
	if task := m.selectedTask(); task == nil || task.Title != "two" {
		t.Errorf("Expected cursor clamped on the last task, got %+v", task)
	}
	send(m, key("k"))
	send(m, key("k"))
	if task := m.selectedTask(); task == nil || task.Title != "one" {
		t.Errorf("Expected cursor on the first task, got %+v", task)
	}
}

func TestModelQuit(t *testing.T) {
	h := newHarness(t)
	m := h.model()

	cmd := send(m, key("q"))
	if cmd == nil {
		t.Fatalf("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("Expected QuitMsg")
	}
	if m.View() != "" {
		t.Errorf("Expected empty view after quit")
	}
}
