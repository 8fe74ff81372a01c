package components

import (
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/studylog/internal/ui/theme"
)

// MenuItem is one selectable row. Detail is rendered dimmed after the label.
type MenuItem struct {
	Label  string
	Detail string
	Action func() tea.Cmd
}

// Menu is a vertical list with a scrolling window of Height rows.
type Menu struct {
	Items    []MenuItem
	Selected int
	Height   int
}

func NewMenu(items []MenuItem, height int) Menu {
	return Menu{Items: items, Height: height}
}

func (m Menu) Update(msg tea.Msg) (Menu, tea.Cmd) {
	kmsg, ok := msg.(tea.KeyMsg)
	if !ok || len(m.Items) == 0 {
		return m, nil
	}

	switch kmsg.String() {
	case "up", "k":
		if m.Selected > 0 {
			m.Selected--
		}
	case "down", "j":
		if m.Selected < len(m.Items)-1 {
			m.Selected++
		}
	case "home", "g":
		m.Selected = 0
	case "end", "G":
		m.Selected = len(m.Items) - 1
	case "enter":
		if item := m.Items[m.Selected]; item.Action != nil {
			return m, item.Action()
		}
	}
	return m, nil
}

// window returns the visible index range keeping the selection in view.
func (m Menu) window() (int, int) {
	n := len(m.Items)
	if m.Height <= 0 || n <= m.Height {
		return 0, n
	}
	start := min(max(m.Selected-m.Height/2, 0), n-m.Height)
	return start, start + m.Height
}

func (m Menu) View() string {
	var b strings.Builder
	start, end := m.window()
	detail := lipgloss.NewStyle().Foreground(theme.TextDim)
	for i := start; i < end; i++ {
		item := m.Items[i]
		line := "    " + item.Label
		style := theme.Unselected
		if i == m.Selected {
			line = "  ▸ " + item.Label
			style = theme.Selected
		}
		b.WriteString(style.Render(line))
		if item.Detail != "" {
			b.WriteString("  " + detail.Render(item.Detail))
		}
		b.WriteString("\n")
	}
	return b.String()
}
