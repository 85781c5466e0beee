package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/katelyatv/internal/models"
)

const (
	colorAccent = lipgloss.Color("#E4572E")
	colorDone   = lipgloss.Color("#3BB273")
	colorFail   = lipgloss.Color("#D7263D")
	colorNotice = lipgloss.Color("#F0A202")
	colorMuted  = lipgloss.Color("#7A7A7A")
)

var styles = newTheme()

// theme holds one style per kind of text the account browser renders.
type theme struct {
	title lipgloss.Style // Screen headings
	ok    lipgloss.Style // Completed deletions
	err   lipgloss.Style // Storage failures
	warn  lipgloss.Style // Notices such as the protected owner
	help  lipgloss.Style // Record summaries
	owner lipgloss.Style // The owner's role in the user list
}

func newTheme() theme {
	return theme{
		title: fg(colorAccent).Bold(true).MarginBottom(1),
		ok:    fg(colorDone).Bold(true),
		err:   fg(colorFail).Bold(true),
		warn:  fg(colorNotice),
		help:  fg(colorMuted).Italic(true),
		owner: fg(colorAccent).Bold(true),
	}
}

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// role renders a role name; only the owner is highlighted.
func (t theme) role(name string) string {
	if name == models.RoleOwner {
		return t.owner.Render(name)
	}
	return name
}
