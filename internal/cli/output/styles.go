package output

import "github.com/charmbracelet/lipgloss"

// Styles groups the lipgloss styles used by command renderers.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Info    lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusRunning lipgloss.Style
	StatusPending lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Header1: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header2: r.NewStyle().Bold(true).Foreground(lipgloss.Color("14")),
		Bold:    r.NewStyle().Bold(true),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Info:    r.NewStyle().Foreground(lipgloss.Color("12")),
		Success: r.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),

		StatusSuccess: r.NewStyle().Foreground(lipgloss.Color("10")).SetString("✓"),
		StatusFailed:  r.NewStyle().Foreground(lipgloss.Color("9")).SetString("✗"),
		StatusRunning: r.NewStyle().Foreground(lipgloss.Color("11")).SetString("●"),
		StatusPending: r.NewStyle().Foreground(lipgloss.Color("8")).SetString("○"),
	}
}
