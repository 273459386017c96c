package main

import (
	"context"
	"flag"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-playground/assert/v2"

	"github.com/Anshjain123/Code-N-Collab/backend"
	"github.com/Anshjain123/Code-N-Collab/collab"
	"github.com/Anshjain123/Code-N-Collab/runner"
	"github.com/Anshjain123/Code-N-Collab/session"
	"github.com/Anshjain123/Code-N-Collab/state"
	"github.com/Anshjain123/Code-N-Collab/store"
)

func init() {
	flag.Set("logtostderr", "true")
	flag.Set("v", "0")
}

func TestResolveServer(t *testing.T) {
	cases := []struct {
		address, server, want string
	}{
		{"https://codencollab.dev/editor?room=abc123&name=alice", "", "wss://codencollab.dev"},
		{"http://localhost:8081/editor?room=abc123", "", "ws://localhost:8081"},
		{"?room=abc123&name=bob", "ws://10.0.0.2:8081/", "ws://10.0.0.2:8081"},
		{"?room=abc123", "https://example.com/collab-api", "wss://example.com/collab-api"},
		{"?room=abc123", "", ""},
	}
	for _, c := range cases {
		got, err := resolveServer(c.address, c.server)
		assert.Equal(t, nil, err)
		assert.Equal(t, c.want, got)
	}

	_, err := resolveServer("?room=abc123", "ftp://example.com")
	assert.NotEqual(t, nil, err)
	_, err = resolveServer("?room=abc123", "/just/a/path")
	assert.NotEqual(t, nil, err)
}

func TestPrefsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	p, err := OpenPrefs(path)
	if err != nil {
		t.Fatal(err)
	}
	tools := state.Initial().Tools
	tools.Language = "python"
	tools.Theme = "github"
	tools.FontSize = 20
	assert.Equal(t, nil, p.Save(tools))
	assert.Equal(t, nil, p.SaveBuffer("abc123", "print(42)"))
	assert.Equal(t, nil, p.Close())

	p, err = OpenPrefs(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	st := state.NewStore(state.Initial())
	assert.Equal(t, nil, p.Apply(st))
	assert.Equal(t, "python", st.Tools().Language)
	assert.Equal(t, "github", st.Tools().Theme)
	assert.Equal(t, 20, st.Tools().FontSize)
	assert.Equal(t, "print(42)", p.LastBuffer("abc123"))
	assert.Equal(t, "", p.LastBuffer("elsewhere"))
}

func TestUILoopOrderAndReentry(t *testing.T) {
	l := newUILoop()
	wakes := make(chan tea.Msg, 16)

	var got []int
	l.Dispatch(func() { got = append(got, 1) })
	l.attach(func(m tea.Msg) { wakes <- m })
	l.Dispatch(func() {
		got = append(got, 2)
		// Dispatching from inside drained work must not block.
		l.Dispatch(func() { got = append(got, 3) })
	})

	<-wakes
	l.drain()
	assert.Equal(t, []int{1, 2}, got)
	<-wakes
	l.drain()
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestThemeFallback(t *testing.T) {
	assert.Equal(t, "cobalt", themeFor("cobalt").name)
	assert.Equal(t, "blackBoard", themeFor("solarized").name)
	for _, name := range state.Themes {
		_, ok := palettes[name]
		assert.Equal(t, true, ok)
	}
}

type harness struct {
	t    *testing.T
	s    *shell
	msgs chan tea.Msg
}

func (h *harness) send(msg tea.Msg) tea.Cmd {
	_, cmd := h.s.Update(msg)
	return cmd
}

// until pumps queued messages through Update until cond holds.
func (h *harness) until(cond func() bool) {
	h.t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case msg := <-h.msgs:
			h.send(msg)
		case <-deadline:
			h.t.Fatal("condition not met in time")
		}
	}
}

func TestShellEditAndCompile(t *testing.T) {
	exec := runner.NewLocal()
	exec.Languages = map[string]runner.Language{
		"cpp": {File: "main.cpp", Run: []string{"cat", "{file}"}},
	}
	st := store.NewMemory()
	srv := httptest.NewServer(backend.NewRouter(backend.NewHub(st), backend.NewGateway(exec, st, 5*time.Second)))
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	prefs, err := OpenPrefs(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer prefs.Close()
	prefs.SaveBuffer("abc123", "// saved\n")

	s := newShell(shellConfig{
		Room:           "abc123",
		Name:           "alice",
		CollabURL:      base + "/collab",
		SocketURL:      base + "/socket",
		CompileTimeout: 5 * time.Second,
	}, prefs)
	h := &harness{t: t, s: s, msgs: make(chan tea.Msg, 64)}
	s.loop.attach(func(m tea.Msg) { h.msgs <- m })
	assert.Equal(t, true, strings.Contains(s.View(), "joining room"))

	go func() { h.msgs <- s.connect() }()
	h.until(func() bool { return s.phase != phaseConnecting })
	assert.Equal(t, phaseReady, s.phase)
	assert.NotEqual(t, nil, s.cycle)
	assert.Equal(t, "// saved\n", s.buf.Text())

	s.buf.End()
	h.send(tea.KeyMsg{Type: tea.KeyDown})
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hi")})
	h.send(tea.KeyMsg{Type: tea.KeySpace})
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("there")})
	assert.Equal(t, "// saved\nhi there", s.buf.Text())

	h.send(tea.KeyMsg{Type: tea.KeyTab})
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("7")})
	h.send(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "7", s.store.Tools().Input)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	bob, err := collab.ConnectAnonymously(ctx, base+"/collab", "bob")
	if err != nil {
		t.Fatal(err)
	}
	defer bob.Dispose()
	_, err = bob.Models().OpenAutoCreate(ctx, collab.OpenOptions{
		Collection: session.Collection,
		ID:         "abc123",
		Ephemeral:  true,
		Data:       map[string]string{session.TextElement: ""},
	})
	assert.Equal(t, nil, err)
	h.until(func() bool { return s.status == "bob joined" })

	h.send(tea.KeyMsg{Type: tea.KeyCtrlG})
	assert.Equal(t, true, s.store.Tools().ShowGraph)
	assert.Equal(t, true, strings.Contains(s.View(), "alice"))
	assert.Equal(t, true, strings.Contains(s.View(), "bob"))

	h.send(tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Equal(t, true, s.store.Tools().IsLoading)
	assert.Equal(t, true, strings.Contains(s.View(), "Compiling"))

	// Typing is ignored while the run is outstanding.
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Equal(t, "// saved\nhi there", s.buf.Text())

	h.until(func() bool { return !s.store.Tools().IsLoading })
	assert.Equal(t, "// saved\nhi there", s.store.Tools().Output)
	assert.Equal(t, state.ToastSuccess, s.store.Tools().Notification)

	h.send(tea.KeyMsg{Type: tea.KeyCtrlT})
	assert.Equal(t, "cobalt", s.store.Tools().Theme)

	cmd := h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.NotEqual(t, nil, cmd)
	assert.Equal(t, "// saved\nhi there", prefs.LastBuffer("abc123"))
}

func TestShellConnectFailure(t *testing.T) {
	s := newShell(shellConfig{
		Room:      "abc123",
		Name:      "alice",
		CollabURL: "ws://127.0.0.1:1/collab",
		SocketURL: "ws://127.0.0.1:1/socket",
	}, nil)
	s.loop.attach(func(tea.Msg) {})

	s.Update(s.connect())
	assert.Equal(t, phaseFailed, s.phase)
	view := s.View()
	assert.Equal(t, true, strings.Contains(view, "could not open the room"))
	assert.Equal(t, true, strings.Contains(view, `joining room "abc123"`))

	// Edits are ignored until the room is open.
	s.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Equal(t, "", s.buf.Text())
}
