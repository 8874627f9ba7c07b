package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kimhyun5u/MyPM/pkg/models"
)

var (
	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedColumnStyle = columnStyle.
				BorderForeground(lipgloss.Color("39"))

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252"))

	selectedTaskStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true)

	dueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)

	attachedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	placeholderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// statusColors tint column headers.
var statusColors = map[models.TaskStatus]lipgloss.Color{
	models.TaskStatusTodo:       lipgloss.Color("252"),
	models.TaskStatusInProgress: lipgloss.Color("214"),
	models.TaskStatusDone:       lipgloss.Color("42"),
	models.TaskStatusBlocked:    lipgloss.Color("196"),
}

// TaskColumn renders one status column of the board.
type TaskColumn struct {
	Status models.TaskStatus
	Label  string
	Tasks  []models.Task
	Width  int
	// Selected is the index of the highlighted task, or -1.
	Selected int
	// RetrospectiveID marks tasks attached to the loaded retrospective.
	RetrospectiveID string
}

func NewTaskColumn(status models.TaskStatus, label string, tasks []models.Task, width int) *TaskColumn {
	return &TaskColumn{
		Status:   status,
		Label:    label,
		Tasks:    tasks,
		Width:    width,
		Selected: -1,
	}
}

func (c *TaskColumn) View() string {
	header := columnHeaderStyle.Foreground(statusColors[c.Status]).
		Render(fmt.Sprintf("%s (%d)", c.Label, len(c.Tasks)))

	innerWidth := c.Width - 4
	if innerWidth < 0 {
		innerWidth = 0
	}
	titleWidth := innerWidth - 2
	if titleWidth < 0 {
		titleWidth = 0
	}

	var lines []string
	if len(c.Tasks) == 0 {
		lines = append(lines, placeholderStyle.Render("No tasks"))
	}
	for i, t := range c.Tasks {
		marker := " "
		if c.RetrospectiveID != "" && t.AttachedTo(c.RetrospectiveID) {
			marker = attachedStyle.Render("✓")
		}

		wrapped := lipgloss.NewStyle().Width(titleWidth).Render(t.Title)
		if i == c.Selected {
			wrapped = selectedTaskStyle.Width(titleWidth).Render(t.Title)
		}
		for j, line := range strings.Split(wrapped, "\n") {
			if j == 0 {
				lines = append(lines, fmt.Sprintf("%s %s", marker, line))
			} else {
				lines = append(lines, fmt.Sprintf("  %s", line))
			}
		}
		if t.DueDate != nil {
			lines = append(lines, "  "+dueStyle.Render("due "+*t.DueDate))
		}
	}

	style := columnStyle
	if c.Selected >= 0 {
		style = focusedColumnStyle
	}
	return style.Width(max(c.Width-2, 0)).Render(header + "\n" + strings.Join(lines, "\n"))
}
