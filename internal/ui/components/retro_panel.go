package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kimhyun5u/MyPM/internal/board"
	"github.com/kimhyun5u/MyPM/pkg/models"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	missingTaskStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Strikethrough(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// RetroPanel renders the retrospective for the selected date.
type RetroPanel struct {
	Date     string
	Retro    *models.Retrospective
	Attached []board.AttachedTask
	Err      error
	Width    int
}

func (p *RetroPanel) View() string {
	title := panelTitleStyle.Render(fmt.Sprintf("Retrospective · %s", p.Date))
	width := p.Width - 4
	if width < 0 {
		width = 0
	}

	var body []string
	switch {
	case p.Err != nil:
		body = append(body, errorStyle.Render("Failed to load retrospective"))
	case p.Date == "":
		body = append(body, placeholderStyle.Render("No date selected"))
	case p.Retro == nil:
		body = append(body, placeholderStyle.Render("No retrospective for this date"))
	default:
		body = append(body, columnHeaderStyle.Render(p.Retro.Title))
		if p.Retro.Summary != nil {
			body = append(body, summaryStyle.Width(width).Render(*p.Retro.Summary))
		}
		body = append(body, "")
		if len(p.Attached) == 0 {
			body = append(body, placeholderStyle.Render("No tasks attached"))
		}
		for _, a := range p.Attached {
			if a.Missing {
				body = append(body, "• "+missingTaskStyle.Render("deleted task"))
				continue
			}
			body = append(body, fmt.Sprintf("• %s [%s]", a.Task.Title, board.Label(a.Task.Status)))
		}
	}

	return panelStyle.Width(max(p.Width-2, 0)).Render(title + "\n" + strings.Join(body, "\n"))
}
