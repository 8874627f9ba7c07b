package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	logLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	logErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	scrollbarTrackStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("236"))

	scrollbarHandleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))
)

// ActivityLog shows recent dashboard actions in a scrolling viewport.
type ActivityLog struct {
	viewport viewport.Model
	lines    []string
	limit    int
	ready    bool
}

func NewActivityLog(width, height, limit int) *ActivityLog {
	l := &ActivityLog{limit: limit}
	l.SetSize(width, height)
	return l
}

func (l *ActivityLog) SetSize(width, height int) {
	vpWidth := width
	if width > 0 {
		vpWidth = width - 1
	}
	if !l.ready {
		l.viewport = viewport.New(vpWidth, height)
		l.ready = true
	} else {
		l.viewport.Width = vpWidth
		l.viewport.Height = height
	}
	l.updateContent()
}

func (l *ActivityLog) Add(line string) {
	l.append(logLineStyle.Render(line))
}

func (l *ActivityLog) AddError(action string, err error) {
	l.append(logErrorStyle.Render(fmt.Sprintf("%s: %v", action, err)))
}

func (l *ActivityLog) append(line string) {
	l.lines = append(l.lines, line)
	if l.limit > 0 && len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
	l.updateContent()
}

func (l *ActivityLog) Lines() int {
	return len(l.lines)
}

func (l *ActivityLog) updateContent() {
	content := strings.Join(l.lines, "\n")
	if l.viewport.Width > 0 {
		content = lipgloss.NewStyle().Width(l.viewport.Width).Render(content)
	}
	l.viewport.SetContent(content)
	l.viewport.GotoBottom()
}

func (l *ActivityLog) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	l.viewport, cmd = l.viewport.Update(msg)
	return cmd
}

func (l *ActivityLog) View() string {
	if l.viewport.TotalLineCount() <= l.viewport.Height {
		return l.viewport.View()
	}

	h := l.viewport.Height
	handlePos := int(float64(h-1) * l.viewport.ScrollPercent())

	var sb strings.Builder
	for i := 0; i < h; i++ {
		if i == handlePos {
			sb.WriteString(scrollbarHandleStyle.Render("┃"))
		} else {
			sb.WriteString(scrollbarTrackStyle.Render("│"))
		}
		if i < h-1 {
			sb.WriteString("\n")
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, l.viewport.View(), sb.String())
}
