package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/dlpanel/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	panel lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t)).
			Padding(0, 1),
	}
}

// job picks the style for a job's status line.
func (p *Palette) job(j models.Job) lipgloss.Style {
	switch {
	case j.Status == models.JobCompleted:
		return p.ok
	case j.Status == models.JobFailed || j.Error != "":
		return p.err
	case j.Status == models.JobCancelled || j.CancelRequested:
		return p.warn
	default:
		return lipgloss.NewStyle()
	}
}

// overall colors the aggregate label once the session has an outcome.
func (p *Palette) overall(label string) lipgloss.Style {
	switch strings.ToLower(label) {
	case "completed":
		return p.ok
	case "failed":
		return p.err
	case "cancelled":
		return p.warn
	default:
		return lipgloss.NewStyle().Bold(true)
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
