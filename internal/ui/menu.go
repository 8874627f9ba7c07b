package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	logoStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	subtitleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true).PaddingLeft(2)
	itemStyle         = lipgloss.NewStyle().PaddingLeft(2)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("63")).Bold(true)
	descriptionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const logo = `
 __  __       ____  __  __
|  \/  |_   _|  _ \|  \/  |
| |\/| | | | | |_) | |\/| |
| |  | | |_| |  __/| |  | |
|_|  |_|\__, |_|   |_|  |_|
        |___/
`

// MenuItem is one launcher entry. Name matches a mypm subcommand.
type MenuItem struct {
	Name        string
	Description string
}

var defaultItems = []MenuItem{
	{"dashboard", "open the task board and retrospective panel"},
	{"tasks", "list tasks"},
	{"retro", "show today's retrospective"},
	{"status", "check the backend and show counts"},
	{"serve", "run the reference backend"},
	{"init", "create the local database"},
	{"mcp", "serve MyPM tools over MCP stdio"},
}

type MenuModel struct {
	items    []MenuItem
	subtitle string
	cursor   int
	selected string
	quitting bool
}

// NewMenuModel builds the launcher. subtitle is shown under the logo, for
// example the backend URL in use.
func NewMenuModel(subtitle string) MenuModel {
	return MenuModel{
		items:    defaultItems,
		subtitle: subtitle,
	}
}

func (m MenuModel) Init() tea.Cmd {
	return nil
}

func (m MenuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}

		case "home", "g":
			m.cursor = 0

		case "end", "G":
			m.cursor = len(m.items) - 1

		case "enter":
			m.selected = m.items[m.cursor].Name
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m MenuModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder

	s.WriteString(logoStyle.Render(logo))
	s.WriteString("\n")
	if m.subtitle != "" {
		s.WriteString(subtitleStyle.Render(m.subtitle))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	width := 0
	for _, item := range m.items {
		width = max(width, len(item.Name))
	}

	for i, item := range m.items {
		line := fmt.Sprintf("%-*s  %s", width, item.Name, descriptionStyle.Render(item.Description))
		if m.cursor == i {
			s.WriteString(selectedItemStyle.Render("> " + line))
		} else {
			s.WriteString(itemStyle.Render("  " + line))
		}
		s.WriteString("\n")
	}

	s.WriteString("\n(use arrow keys or j/k to navigate, enter to select, q to quit)\n")

	return s.String()
}

// Selected is the chosen item name, or "" when the user quit.
func (m MenuModel) Selected() string {
	return m.selected
}

func RunMenu(subtitle string) (string, error) {
	p := tea.NewProgram(NewMenuModel(subtitle))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	return finalModel.(MenuModel).Selected(), nil
}
