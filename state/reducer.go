package state

// Kind names an action.
type Kind string

const (
	SetLoading          Kind = "SET_LOADING"
	ResetLoading        Kind = "RESET_LOADING"
	SetOutput           Kind = "SET_OUTPUT"
	SetInput            Kind = "SET_INPUT"
	SetCompileOn        Kind = "SET_COMPILE_ON"
	SetCompileOff       Kind = "SET_COMPILE_OFF"
	NotifyOutputSuccess Kind = "NOTIFY_OUTPUT_SUCCESS"
	NotifyOutputError   Kind = "NOTIFY_OUTPUT_ERROR"
	ClearNotification   Kind = "CLEAR_NOTIFICATION"
	SetLanguage         Kind = "SET_LANGUAGE"
	SetTheme            Kind = "SET_THEME"
	SetFontSize         Kind = "SET_FONT_SIZE"
	ToggleGraph         Kind = "TOGGLE_GRAPH"
)

// Action is dispatched to the store. Value carries the payload of the
// string-valued kinds, Size the payload of SetFontSize.
type Action struct {
	Kind  Kind
	Value string
	Size  int
}

// Reduce returns the state that results from applying a to s. It never
// mutates s. Unknown kinds and invalid payloads return s unchanged.
func Reduce(s State, a Action) State {
	t := s.Tools
	switch a.Kind {
	case SetLoading:
		t.IsLoading = true
	case ResetLoading:
		t.IsLoading = false
	case SetOutput:
		t.Output = a.Value
	case SetInput:
		t.Input = a.Value
	case SetCompileOn:
		t.NowCompile = true
	case SetCompileOff:
		t.NowCompile = false
	case NotifyOutputSuccess:
		t.Notification = ToastSuccess
	case NotifyOutputError:
		t.Notification = ToastError
	case ClearNotification:
		t.Notification = NoToast
	case SetLanguage:
		if !contains(Languages, a.Value) {
			return s
		}
		t.Language = a.Value
	case SetTheme:
		if !contains(Themes, a.Value) {
			return s
		}
		t.Theme = a.Value
	case SetFontSize:
		t.FontSize = min(max(a.Size, MinFontSize), MaxFontSize)
	case ToggleGraph:
		t.ShowGraph = !t.ShowGraph
	default:
		return s
	}
	s.Tools = t
	return s
}

// Next returns the entry after cur in list, wrapping around. An unknown
// cur yields the first entry.
func Next(list []string, cur string) string {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
