// Package state holds the editor client's shared UI state and the pure
// reducer that evolves it.
package state

// Notification is the toast the shell should show after a compile.
type Notification int

const (
	NoToast Notification = iota
	ToastSuccess
	ToastError
)

func (n Notification) String() string {
	switch n {
	case ToastSuccess:
		return "success"
	case ToastError:
		return "error"
	default:
		return "none"
	}
}

// Languages the execution service understands, in the order the shell
// cycles through them.
var Languages = []string{"cpp", "c", "python", "javascript", "java", "go"}

// Themes the shell can render, in cycling order.
var Themes = []string{"blackBoard", "cobalt", "merbivore", "github"}

const (
	DefaultFontSize = 16
	MinFontSize     = 8
	MaxFontSize     = 40
)

// Tools is the toolbar and output state shared by every component.
type Tools struct {
	Language     string
	Theme        string
	FontSize     int
	Input        string
	Output       string
	IsLoading    bool
	NowCompile   bool
	ShowGraph    bool
	Notification Notification
}

// State is the whole client state.
type State struct {
	Tools Tools
}

// Initial returns the state a fresh client starts with.
func Initial() State {
	return State{
		Tools: Tools{
			Language: Languages[0],
			Theme:    Themes[0],
			FontSize: DefaultFontSize,
		},
	}
}
