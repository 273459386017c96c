package main

import "github.com/charmbracelet/lipgloss"

type palette struct {
	bg, fg, gutter, accent, comment, ok, bad string
}

// Colors follow the editor themes of the same names.
var palettes = map[string]palette{
	"blackBoard": {bg: "#0C1021", fg: "#F8F8F8", gutter: "#4D4D4D", accent: "#FBDE2D", comment: "#AEAEAE", ok: "#61CE3C", bad: "#FF6400"},
	"cobalt":     {bg: "#002240", fg: "#FFFFFF", gutter: "#0088FF", accent: "#FF9D00", comment: "#0088FF", ok: "#3AD900", bad: "#FF628C"},
	"merbivore":  {bg: "#161616", fg: "#E6E1DC", gutter: "#5F5A60", accent: "#FC6D24", comment: "#AD2EA4", ok: "#8EC65F", bad: "#FC6D24"},
	"github":     {bg: "#FFFFFF", fg: "#24292E", gutter: "#959DA5", accent: "#005CC5", comment: "#6A737D", ok: "#22863A", bad: "#D73A49"},
}

type theme struct {
	name string

	base    lipgloss.Style
	toolbar lipgloss.Style
	gutter  lipgloss.Style
	cursor  lipgloss.Style
	pane    lipgloss.Style
	focused lipgloss.Style
	title   lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
	modal   lipgloss.Style
}

// themeFor builds the styles for name, falling back to blackBoard.
func themeFor(name string) theme {
	p, ok := palettes[name]
	if !ok {
		name = "blackBoard"
		p = palettes[name]
	}
	bg, fg := lipgloss.Color(p.bg), lipgloss.Color(p.fg)
	base := lipgloss.NewStyle().Background(bg).Foreground(fg)
	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(p.gutter)).
		Padding(0, 1)
	return theme{
		name:    name,
		base:    base,
		toolbar: lipgloss.NewStyle().Background(lipgloss.Color(p.accent)).Foreground(bg).Bold(true).Padding(0, 1),
		gutter:  lipgloss.NewStyle().Foreground(lipgloss.Color(p.gutter)),
		cursor:  lipgloss.NewStyle().Reverse(true),
		pane:    pane,
		focused: pane.BorderForeground(lipgloss.Color(p.accent)),
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.accent)).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(p.comment)),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.ok)).Bold(true),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.bad)).Bold(true),
		modal: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color(p.accent)).
			Padding(1, 4).
			Bold(true),
	}
}
