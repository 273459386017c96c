package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/golang/glog"

	"github.com/Anshjain123/Code-N-Collab/collab"
	"github.com/Anshjain123/Code-N-Collab/compile"
	"github.com/Anshjain123/Code-N-Collab/editor"
	"github.com/Anshjain123/Code-N-Collab/protocol"
	"github.com/Anshjain123/Code-N-Collab/session"
	"github.com/Anshjain123/Code-N-Collab/state"
)

type phase int

const (
	phaseConnecting phase = iota
	phaseReady
	phaseFailed
)

type focus int

const (
	focusEditor focus = iota
	focusInput
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const connectTimeout = 15 * time.Second

type (
	tickMsg      time.Time
	connectedMsg struct {
		socket *compile.Socket
		err    error
	}
	connectFailedMsg struct{ err error }
	lostMsg          struct{ err error }
)

type shellConfig struct {
	Room      string
	Name      string
	CollabURL string
	SocketURL string
	// CompileTimeout bounds how long the shell waits for a run.
	CompileTimeout time.Duration
}

// shell is the bubbletea model of the editor client.
type shell struct {
	cfg   shellConfig
	loop  *uiLoop
	store *state.Store
	buf   *editor.Buffer
	conn  *session.Connector
	prefs *Prefs

	socket   *compile.Socket
	cycle    *compile.Cycle
	presence func()

	phase   phase
	err     error
	status  string
	focus   focus
	frame   int
	ticking bool

	width, height int
	top           int
}

func newShell(cfg shellConfig, prefs *Prefs) *shell {
	loop := newUILoop()
	st := state.NewStore(state.Initial())
	initial := ""
	if prefs != nil {
		if err := prefs.Apply(st); err != nil {
			glog.Warningf("[agent]load prefs: %v", err)
		}
		initial = prefs.LastBuffer(cfg.Room)
	}
	buf := editor.NewBuffer("")
	conn := session.NewConnector(session.Config{
		Endpoint:   cfg.CollabURL,
		Params:     session.Params{Room: cfg.Room, Name: cfg.Name},
		Initial:    initial,
		Dial:       session.CollabDialer(collab.WithDispatcher(loop)),
		Dispatcher: loop,
	}, buf)
	return &shell{
		cfg:    cfg,
		loop:   loop,
		store:  st,
		buf:    buf,
		conn:   conn,
		prefs:  prefs,
		width:  100,
		height: 30,
	}
}

func (s *shell) Init() tea.Cmd {
	return tea.Batch(s.connect, s.tick())
}

// tick keeps the spinners moving. Only one tick is outstanding at a time.
func (s *shell) tick() tea.Cmd {
	if s.ticking {
		return nil
	}
	s.ticking = true
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// connect runs off the update loop: Start waits for the loop to bind the
// buffer.
func (s *shell) connect() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := s.conn.Start(ctx); err != nil {
		return connectFailedMsg{err}
	}
	sock, err := compile.DialSocket(ctx, s.cfg.SocketURL, s.cfg.Room, s.loop)
	return connectedMsg{socket: sock, err: err}
}

func (s *shell) watch() tea.Msg {
	b, ok := s.conn.Backend().(*session.CollabBackend)
	if !ok {
		return nil
	}
	<-b.Domain.Done()
	return lostMsg{b.Domain.Err()}
}

func (s *shell) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case drainMsg:
		s.loop.drain()
		if s.store.Tools().IsLoading {
			return s, s.tick()
		}
	case tickMsg:
		s.ticking = false
		s.frame++
		if s.phase != phaseReady || s.store.Tools().IsLoading {
			return s, s.tick()
		}
		return s, nil
	case tea.WindowSizeMsg:
		s.width, s.height = msg.Width, msg.Height
	case connectFailedMsg:
		s.phase = phaseFailed
		s.err = msg.err
		return s, s.tick()
	case connectedMsg:
		s.phase = phaseReady
		if msg.err != nil {
			glog.Warningf("[agent]compile socket: %v", msg.err)
			s.status = "compile service unavailable"
		} else {
			s.socket = msg.socket
			s.cycle = compile.NewCycle(compile.Config{
				Store:      s.store,
				Transport:  msg.socket,
				Code:       s.buf.Text,
				Dispatcher: s.loop,
				Timeout:    s.cfg.CompileTimeout,
			})
			s.cycle.Start()
		}
		if m := s.model(); m != nil {
			s.presence = m.OnPresence(s.onPresence)
		}
		return s, s.watch
	case lostMsg:
		if !errors.Is(msg.err, collab.ErrDisposed) {
			s.status = "connection lost"
		}
	case tea.KeyMsg:
		return s.key(msg)
	}
	return s, nil
}

func (s *shell) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		s.shutdown()
		return s, tea.Quit
	}
	if s.phase != phaseReady {
		return s, nil
	}

	tools := s.store.Tools()
	switch msg.String() {
	case "ctrl+r":
		return s, s.trigger()
	case "ctrl+g":
		s.store.Dispatch(state.Action{Kind: state.ToggleGraph})
		return s, nil
	case "ctrl+t":
		s.setTool(state.Action{Kind: state.SetTheme, Value: state.Next(state.Themes, tools.Theme)})
		return s, nil
	case "ctrl+l":
		s.setTool(state.Action{Kind: state.SetLanguage, Value: state.Next(state.Languages, tools.Language)})
		return s, nil
	case "ctrl+o":
		s.setTool(state.Action{Kind: state.SetFontSize, Size: tools.FontSize - 1})
		return s, nil
	case "ctrl+p":
		s.setTool(state.Action{Kind: state.SetFontSize, Size: tools.FontSize + 1})
		return s, nil
	case "tab":
		if s.focus == focusEditor {
			s.focus = focusInput
		} else {
			s.focus = focusEditor
		}
		return s, nil
	}

	// The loading modal blocks editing until the run finishes.
	if tools.IsLoading {
		return s, nil
	}
	if s.focus == focusInput {
		s.editInput(msg, tools.Input)
		return s, nil
	}
	if err := s.editBuffer(msg); err != nil {
		s.status = err.Error()
	}
	return s, nil
}

func (s *shell) trigger() tea.Cmd {
	if s.cycle == nil {
		s.status = "compile service unavailable"
		return nil
	}
	switch err := s.cycle.Trigger(); {
	case errors.Is(err, compile.ErrBusy):
		s.status = "already compiling"
		return nil
	case err != nil:
		s.status = err.Error()
		return nil
	}
	s.status = ""
	return s.tick()
}

// onPresence runs on the ui loop when someone joins or leaves the room.
func (s *shell) onPresence(p protocol.Participant, joined bool) {
	name := p.Username
	if name == "" {
		name = "anonymous"
	}
	if joined {
		s.status = name + " joined"
	} else {
		s.status = name + " left"
	}
}

func (s *shell) setTool(a state.Action) {
	next := s.store.Dispatch(a)
	if s.prefs == nil {
		return
	}
	if err := s.prefs.Save(next.Tools); err != nil {
		glog.Warningf("[agent]save prefs: %v", err)
	}
}

func (s *shell) editInput(msg tea.KeyMsg, input string) {
	switch msg.Type {
	case tea.KeyRunes:
		input += string(msg.Runes)
	case tea.KeySpace:
		input += " "
	case tea.KeyEnter:
		input += "\n"
	case tea.KeyBackspace:
		if r := []rune(input); len(r) > 0 {
			input = string(r[:len(r)-1])
		}
	default:
		return
	}
	s.store.Dispatch(state.Action{Kind: state.SetInput, Value: input})
}

func (s *shell) editBuffer(msg tea.KeyMsg) error {
	switch msg.Type {
	case tea.KeyRunes:
		return s.buf.Insert(string(msg.Runes))
	case tea.KeySpace:
		return s.buf.Insert(" ")
	case tea.KeyEnter:
		return s.buf.Insert("\n")
	case tea.KeyBackspace:
		return s.buf.Backspace()
	case tea.KeyDelete:
		return s.buf.DeleteForward()
	case tea.KeyLeft:
		s.buf.MoveLeft()
	case tea.KeyRight:
		s.buf.MoveRight()
	case tea.KeyUp:
		s.buf.MoveUp()
	case tea.KeyDown:
		s.buf.MoveDown()
	case tea.KeyHome:
		s.buf.Home()
	case tea.KeyEnd:
		s.buf.End()
	}
	return nil
}

// shutdown saves the room's buffer and releases every connection.
func (s *shell) shutdown() {
	if s.prefs != nil && s.phase == phaseReady {
		if err := s.prefs.SaveBuffer(s.cfg.Room, s.buf.Text()); err != nil {
			glog.Warningf("[agent]save buffer: %v", err)
		}
	}
	if s.presence != nil {
		s.presence()
		s.presence = nil
	}
	if s.cycle != nil {
		s.cycle.Stop()
	}
	if s.socket != nil {
		s.socket.Close()
	}
	s.conn.Stop()
}

func (s *shell) model() *collab.Model {
	if b, ok := s.conn.Backend().(*session.CollabBackend); ok {
		return b.Model()
	}
	return nil
}

func (s *shell) View() string {
	tools := s.store.Tools()
	th := themeFor(tools.Theme)

	if s.phase != phaseReady {
		// A failed start is not retried; the room stays in its joining state.
		msg := fmt.Sprintf("%s joining room %q as %q",
			spinnerFrames[s.frame%len(spinnerFrames)], s.cfg.Room, s.cfg.Name)
		if s.phase == phaseFailed {
			msg += "\n\n" + th.bad.Render("could not open the room") + "\n" +
				th.muted.Render(s.err.Error()) + "\n\n" +
				th.muted.Render("esc to quit")
		}
		return th.base.Width(s.width).Height(s.height).Render(
			lipgloss.Place(s.width, s.height, lipgloss.Center, lipgloss.Center, msg))
	}

	toolbar := s.toolbar(th, tools)
	status := s.statusLine(th, tools)
	bodyHeight := max(s.height-lipgloss.Height(toolbar)-lipgloss.Height(status), 6)

	sideWidth := max(s.width/3, 24)
	editorWidth := max(s.width-sideWidth, 20)

	left := s.editorPane(th, editorWidth, bodyHeight)

	var side []string
	paneHeight := bodyHeight/2 - 2
	if tools.ShowGraph {
		paneHeight = bodyHeight/3 - 2
	}
	paneHeight = max(paneHeight, 1)
	if tools.IsLoading {
		modal := th.modal.Render(spinnerFrames[s.frame%len(spinnerFrames)] + " Compiling...")
		side = append(side, lipgloss.Place(sideWidth, paneHeight+2, lipgloss.Center, lipgloss.Center, modal))
	} else {
		side = append(side, s.pane(th, th.pane, "Output", tools.Output, sideWidth, paneHeight))
	}
	inputStyle := th.pane
	if s.focus == focusInput {
		inputStyle = th.focused
	}
	side = append(side, s.pane(th, inputStyle, "Input", tools.Input, sideWidth, paneHeight))
	if tools.ShowGraph {
		side = append(side, s.pane(th, th.pane, "Graph", s.graph(th, sideWidth-4), sideWidth, paneHeight))
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.JoinVertical(lipgloss.Left, side...))
	return th.base.Render(lipgloss.JoinVertical(lipgloss.Left, toolbar, body, status))
}

func (s *shell) toolbar(th theme, tools state.Tools) string {
	online := 0
	if m := s.model(); m != nil {
		online = len(m.Participants())
	}
	parts := []string{
		"Code-N-Collab",
		"room " + s.cfg.Room,
		s.cfg.Name,
		tools.Language,
		tools.Theme,
		fmt.Sprintf("%dpx", tools.FontSize),
		fmt.Sprintf("%d online", online),
	}
	return th.toolbar.Width(s.width).Render(strings.Join(parts, " │ "))
}

func (s *shell) statusLine(th theme, tools state.Tools) string {
	var toast string
	switch tools.Notification {
	case state.ToastSuccess:
		toast = th.ok.Render("✔ output ready")
	case state.ToastError:
		toast = th.bad.Render("✘ compilation error")
	}
	help := th.muted.Render("ctrl+r run · ctrl+l lang · ctrl+t theme · ctrl+o/p size · ctrl+g graph · tab input · esc quit")
	line := strings.TrimSpace(strings.Join([]string{toast, th.muted.Render(s.status)}, " "))
	return lipgloss.JoinVertical(lipgloss.Left, line, help)
}

func (s *shell) editorPane(th theme, width, height int) string {
	inner := max(height-2, 1)
	lines := s.buf.Lines()
	row, col := s.buf.LineCol()
	if row < s.top {
		s.top = row
	}
	if row >= s.top+inner {
		s.top = row - inner + 1
	}

	var out []string
	for i := s.top; i < len(lines) && i < s.top+inner; i++ {
		text := lines[i]
		if i == row && s.focus == focusEditor {
			text = withCursor(th, text, col)
		}
		out = append(out, th.gutter.Render(fmt.Sprintf("%4d ", i+1))+text)
	}
	style := th.focused
	if s.focus != focusEditor {
		style = th.pane
	}
	return style.Width(width - 2).Height(inner).MaxWidth(width).Render(strings.Join(out, "\n"))
}

func withCursor(th theme, line string, col int) string {
	r := []rune(line)
	if col >= len(r) {
		return line + th.cursor.Render(" ")
	}
	return string(r[:col]) + th.cursor.Render(string(r[col])) + string(r[col+1:])
}

func (s *shell) pane(th theme, style lipgloss.Style, title, content string, width, height int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > height-1 {
		lines = lines[len(lines)-(height-1):]
	}
	body := th.title.Render(title) + "\n" + strings.Join(lines, "\n")
	return style.Width(width - 2).Height(height).MaxWidth(width).Render(body)
}

// graph lists the room's participants with a bar per sequenced edit.
func (s *shell) graph(th theme, width int) string {
	m := s.model()
	if m == nil {
		return th.muted.Render("no participants")
	}
	activity := m.Activity()
	most := 1
	for _, n := range activity {
		most = max(most, n)
	}
	var rows []string
	for _, p := range m.Participants() {
		n := activity[p.SessionID]
		barWidth := max(width-18, 1) * n / most
		name := p.Username
		if name == "" {
			name = "anonymous"
		}
		if len([]rune(name)) > 10 {
			name = string([]rune(name)[:10])
		}
		rows = append(rows, fmt.Sprintf("%-10s %s %d", name, th.ok.Render(strings.Repeat("█", barWidth)), n))
	}
	return strings.Join(rows, "\n")
}
