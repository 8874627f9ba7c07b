package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/internal/logging"
	"github.com/kimhyun5u/MyPM/internal/ui/components"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

var (
	headerTextStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	filterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

const activityLogHeight = 4

type inputMode int

const (
	inputNone inputMode = iota
	inputNewTask
	inputNewTaskDescription
	inputNewTaskDue
	inputRetroTitle
	inputRetroSummary
)

// loadedMsg carries a view together with the state it was loaded for.
type loadedMsg struct {
	state State
	view  View
}

type mutationDoneMsg struct {
	action string
	err    error
}

type tickMsg time.Time

// Model is the interactive dashboard.
type Model struct {
	ctx    context.Context
	dash   *Dashboard
	now    func() time.Time
	logger *log.Logger

	refresh time.Duration

	view   View
	loaded bool
	cursor int

	mode  inputMode
	input textinput.Model
	// draft collects the new task across its input steps.
	draft models.TaskCreate

	// pendingDelete is the task awaiting y/n confirmation.
	pendingDelete *models.Task

	// busy is set while a mutation is in flight.
	busy    bool
	errLine string

	activity *components.ActivityLog

	width    int
	height   int
	ready    bool
	quitting bool
}

type ModelOption func(*Model)

// WithRefreshInterval re-reads the dashboard every d. Zero disables it.
func WithRefreshInterval(d time.Duration) ModelOption {
	return func(m *Model) { m.refresh = d }
}

func WithClock(now func() time.Time) ModelOption {
	return func(m *Model) { m.now = now }
}

func WithLogger(logger *log.Logger) ModelOption {
	return func(m *Model) { m.logger = logger }
}

func NewModel(ctx context.Context, dash *Dashboard, opts ...ModelOption) *Model {
	input := textinput.New()
	input.CharLimit = 200

	m := &Model{
		ctx:      ctx,
		dash:     dash,
		now:      time.Now,
		logger:   logging.Discard(),
		input:    input,
		activity: components.NewActivityLog(80, activityLogHeight, 100),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.tick())
}

// load reads the view for the current state off the UI goroutine.
func (m *Model) load() tea.Cmd {
	ctx, tasks, retros, state := m.ctx, m.dash.Tasks, m.dash.Retros, m.dash.State
	return func() tea.Msg {
		return loadedMsg{state: state, view: Load(ctx, tasks, retros, state)}
	}
}

func (m *Model) tick() tea.Cmd {
	if m.refresh <= 0 {
		return nil
	}
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.pendingDelete != nil {
			return m, m.handleConfirm(msg)
		}
		if m.mode != inputNone {
			return m, m.handleInput(msg)
		}
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.activity.SetSize(m.width-2, activityLogHeight)

	case loadedMsg:
		if msg.state != m.dash.State {
			m.logger.Debug("dropping stale load", "filter", msg.state.FilterLabel(), "date", msg.state.RetroDate)
			return m, nil
		}
		m.view = msg.view
		m.loaded = true
		m.clampCursor()

	case mutationDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.logger.Debug("mutation failed", "action", msg.action, "err", msg.err)
			m.errLine = fmt.Sprintf("Failed to %s", msg.action)
			m.activity.AddError(msg.action, msg.err)
			return m, nil
		}
		m.errLine = ""
		m.activity.Add(msg.action)
		return m, m.load()

	case tickMsg:
		return m, tea.Batch(m.load(), m.tick())

	case tea.MouseMsg:
		return m, m.activity.Update(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return tea.Quit

	case "f":
		m.dash.State.CycleStatusFilter()
		m.cursor = 0
		return m.load()

	case "[", "]":
		days := 1
		if msg.String() == "[" {
			days = -1
		}
		if err := m.dash.State.ShiftRetroDate(days); err != nil {
			m.errLine = "No date selected"
			return nil
		}
		return m.load()

	case "t":
		m.dash.State.SetRetroDate(models.Today(m.now()))
		return m.load()

	case "j", "down":
		m.moveCursor(1)

	case "k", "up":
		m.moveCursor(-1)

	case "g":
		m.dash.Tasks.InvalidateAll()
		m.dash.Retros.InvalidateAll()
		return m.load()

	case "n":
		if m.busy {
			return nil
		}
		m.draft = models.TaskCreate{}
		return m.openInput(inputNewTask, "New task: ", "")

	case "r":
		retro, ok := m.currentRetro()
		if m.busy || !ok || m.dash.State.RetroDate == "" {
			return nil
		}
		title := ""
		if retro != nil {
			title = retro.Title
		}
		return m.openInput(inputRetroTitle, "Retrospective title: ", title)

	case "e":
		retro, ok := m.currentRetro()
		if m.busy || !ok || retro == nil {
			return nil
		}
		return m.openInput(inputRetroSummary, "Summary: ", models.Deref(retro.Summary))

	case "s":
		task := m.selectedTask()
		if m.busy || task == nil {
			return nil
		}
		next := nextStatus(task.Status)
		return m.mutate(fmt.Sprintf("move %q to %s", task.Title, board.Label(next)), func(ctx context.Context) error {
			_, err := m.dash.Tasks.SetStatus(ctx, task.ID, next)
			return err
		})

	case "x":
		task := m.selectedTask()
		if m.busy || task == nil {
			return nil
		}
		m.pendingDelete = task

	case "a":
		task := m.selectedTask()
		retro, ok := m.currentRetro()
		if m.busy || task == nil || !ok || !board.CanAttach(*task, retro) {
			return nil
		}
		date := m.dash.State.RetroDate
		return m.mutate(fmt.Sprintf("attach %q", task.Title), func(ctx context.Context) error {
			_, err := m.dash.Retros.AttachTask(ctx, date, retro.ID, task.ID)
			return err
		})
	}
	return nil
}

// currentRetro returns the retrospective loaded for the current state. ok is
// false until that load has arrived without error; a view left over from an
// earlier date or filter does not count.
func (m *Model) currentRetro() (retro *models.Retrospective, ok bool) {
	if !m.loaded || m.view.State != m.dash.State || m.view.RetroErr != nil {
		return nil, false
	}
	return m.view.Retro, true
}

// handleConfirm answers the delete prompt: y deletes, any other key cancels.
func (m *Model) handleConfirm(msg tea.KeyMsg) tea.Cmd {
	task := m.pendingDelete
	m.pendingDelete = nil
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return tea.Quit
	case "y", "Y":
		if m.busy {
			return nil
		}
		return m.mutate(fmt.Sprintf("delete %q", task.Title), func(ctx context.Context) error {
			return m.dash.Tasks.Delete(ctx, task.ID)
		})
	}
	return nil
}

func (m *Model) openInput(mode inputMode, prompt, value string) tea.Cmd {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) closeInput() {
	m.mode = inputNone
	m.input.Blur()
	m.input.SetValue("")
}

func (m *Model) handleInput(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		return tea.Quit
	case tea.KeyEsc:
		m.closeInput()
		return nil
	case tea.KeyEnter:
		if m.busy {
			return nil
		}
		mode, value := m.mode, m.input.Value()
		return m.submit(mode, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

// submit handles Enter in input mode. The new-task form steps through title,
// description and due date; the other inputs save at once.
func (m *Model) submit(mode inputMode, value string) tea.Cmd {
	switch mode {
	case inputNewTask:
		if strings.TrimSpace(value) == "" {
			m.errLine = "Title is required"
			return nil
		}
		m.errLine = ""
		m.draft.Title = value
		return m.openInput(inputNewTaskDescription, "Description (optional): ", "")

	case inputNewTaskDescription:
		m.draft.Description = &value
		return m.openInput(inputNewTaskDue, "Due date YYYY-MM-DD (optional): ", "")

	case inputNewTaskDue:
		if due := strings.TrimSpace(value); due != "" && !models.ValidDate(due) {
			m.errLine = "Due date must be YYYY-MM-DD"
			return nil
		}
		m.errLine = ""
		m.closeInput()
		draft := m.draft
		draft.DueDate = &value
		m.draft = models.TaskCreate{}
		return m.mutate("create task", func(ctx context.Context) error {
			_, err := m.dash.Tasks.Create(ctx, draft)
			return err
		})

	case inputRetroTitle, inputRetroSummary:
		m.closeInput()
		retro, ok := m.currentRetro()
		if !ok {
			m.errLine = "Retrospective not loaded"
			return nil
		}
		date := m.dash.State.RetroDate
		payload := models.RetrospectiveCreate{Title: value, Date: &date}
		if retro != nil {
			payload.Summary = retro.Summary
			if mode == inputRetroSummary {
				payload.Title = retro.Title
				payload.Summary = &value
			}
		}
		return m.mutate("save retrospective", func(ctx context.Context) error {
			_, err := m.dash.Retros.CreateOrUpdate(ctx, payload)
			return err
		})
	}
	return nil
}

// mutate runs fn off the UI goroutine. Results arrive as mutationDoneMsg.
func (m *Model) mutate(action string, fn func(context.Context) error) tea.Cmd {
	m.busy = true
	ctx := m.ctx
	return func() tea.Msg {
		return mutationDoneMsg{action: action, err: fn(ctx)}
	}
}

func nextStatus(s models.TaskStatus) models.TaskStatus {
	for i, st := range models.TaskStatuses {
		if st == s {
			return models.TaskStatuses[(i+1)%len(models.TaskStatuses)]
		}
	}
	return models.TaskStatusTodo
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	n := len(m.view.Tasks())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) selectedTask() *models.Task {
	tasks := m.view.Tasks()
	if m.cursor < 0 || m.cursor >= len(tasks) {
		return nil
	}
	t := tasks[m.cursor]
	return &t
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading dashboard..."
	}

	var s strings.Builder
	s.WriteString(m.renderHeader())
	s.WriteString("\n")

	panelWidth := m.width / 3
	if panelWidth < 30 {
		panelWidth = 30
	}
	boardWidth := m.width - panelWidth
	if boardWidth < 0 {
		boardWidth = 0
	}

	panel := &components.RetroPanel{
		Date:     m.view.State.RetroDate,
		Retro:    m.view.Retro,
		Attached: m.view.Attached,
		Err:      m.view.RetroErr,
		Width:    panelWidth,
	}
	if !m.loaded {
		panel.Date = m.dash.State.RetroDate
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.renderBoard(boardWidth), panel.View()))
	s.WriteString("\n")

	if m.errLine != "" {
		s.WriteString(errorLineStyle.Render(m.errLine))
		s.WriteString("\n")
	}
	if m.pendingDelete != nil {
		s.WriteString(promptStyle.Render(fmt.Sprintf("Delete %q? y/n", m.pendingDelete.Title)))
		s.WriteString("\n")
	}
	if m.mode != inputNone {
		s.WriteString(promptStyle.Render(m.input.View()))
		s.WriteString("\n")
	}
	s.WriteString(m.activity.View())
	s.WriteString("\n")
	s.WriteString(m.renderHelp())
	return s.String()
}

func (m *Model) renderHeader() string {
	text := headerTextStyle.Render("MyPM")
	filter := filterStyle.Render(fmt.Sprintf("filter: %s · date: %s", m.dash.State.FilterLabel(), m.dash.State.RetroDate))
	header := lipgloss.JoinHorizontal(lipgloss.Center, text, " ", filter)
	if m.busy {
		header = lipgloss.JoinHorizontal(lipgloss.Center, header, "  ", busyStyle.Render("saving..."))
	}
	return header
}

func (m *Model) renderBoard(width int) string {
	if !m.loaded {
		return lipgloss.NewStyle().Width(width).Render(filterStyle.Render("Loading tasks..."))
	}
	if m.view.TasksErr != nil {
		return lipgloss.NewStyle().Width(width).Render(errorLineStyle.Render("Failed to load tasks (press g to retry)"))
	}

	cols := m.view.Columns
	if len(cols) == 0 {
		return ""
	}
	colWidth := width / len(cols)

	retroID := ""
	if retro, ok := m.currentRetro(); ok && retro != nil {
		retroID = retro.ID
	}

	offset := 0
	rendered := make([]string, 0, len(cols))
	for _, col := range cols {
		c := components.NewTaskColumn(col.Status, col.Label, col.Tasks, colWidth)
		c.RetrospectiveID = retroID
		if m.cursor >= offset && m.cursor < offset+len(col.Tasks) {
			c.Selected = m.cursor - offset
		}
		offset += len(col.Tasks)
		rendered = append(rendered, c.View())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m *Model) renderHelp() string {
	if m.pendingDelete != nil {
		return helpStyle.Render("y to delete • any other key to cancel")
	}
	if m.mode != inputNone {
		return helpStyle.Render("enter to save • esc to cancel")
	}
	return helpStyle.Render("j/k move • f filter • [/] day • t today • n new • s status • x delete • a attach • r title • e summary • g refresh • q quit")
}

// Run starts the dashboard program and blocks until the user quits or ctx
// ends.
func Run(ctx context.Context, dash *Dashboard, opts ...ModelOption) error {
	m := NewModel(ctx, dash, opts...)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
