package state

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestReduceDoesNotMutate(t *testing.T) {
	s := Initial()
	next := Reduce(s, Action{Kind: SetOutput, Value: "4"})
	assert.Equal(t, "", s.Tools.Output)
	assert.Equal(t, "4", next.Tools.Output)
}

func TestReduceFlags(t *testing.T) {
	s := Initial()
	s = Reduce(s, Action{Kind: SetCompileOn})
	s = Reduce(s, Action{Kind: SetLoading})
	assert.Equal(t, true, s.Tools.NowCompile)
	assert.Equal(t, true, s.Tools.IsLoading)

	s = Reduce(s, Action{Kind: SetCompileOff})
	s = Reduce(s, Action{Kind: ResetLoading})
	assert.Equal(t, false, s.Tools.NowCompile)
	assert.Equal(t, false, s.Tools.IsLoading)

	s = Reduce(s, Action{Kind: NotifyOutputError})
	assert.Equal(t, ToastError, s.Tools.Notification)
	s = Reduce(s, Action{Kind: ClearNotification})
	assert.Equal(t, NoToast, s.Tools.Notification)

	s = Reduce(s, Action{Kind: ToggleGraph})
	assert.Equal(t, true, s.Tools.ShowGraph)
	s = Reduce(s, Action{Kind: ToggleGraph})
	assert.Equal(t, false, s.Tools.ShowGraph)
}

func TestReduceRejectsUnknownValues(t *testing.T) {
	s := Initial()
	assert.Equal(t, s, Reduce(s, Action{Kind: SetLanguage, Value: "cobol"}))
	assert.Equal(t, s, Reduce(s, Action{Kind: SetTheme, Value: "neon"}))
	assert.Equal(t, s, Reduce(s, Action{Kind: "NOPE"}))

	s = Reduce(s, Action{Kind: SetLanguage, Value: "python"})
	assert.Equal(t, "python", s.Tools.Language)
}

func TestReduceClampsFontSize(t *testing.T) {
	s := Reduce(Initial(), Action{Kind: SetFontSize, Size: 2})
	assert.Equal(t, MinFontSize, s.Tools.FontSize)
	s = Reduce(s, Action{Kind: SetFontSize, Size: 99})
	assert.Equal(t, MaxFontSize, s.Tools.FontSize)
}

func TestNext(t *testing.T) {
	assert.Equal(t, "cobalt", Next(Themes, "blackBoard"))
	assert.Equal(t, "blackBoard", Next(Themes, "github"))
	assert.Equal(t, "blackBoard", Next(Themes, "unknown"))
}

func TestStoreNotifies(t *testing.T) {
	store := NewStore(Initial())
	var seen []string
	unsubscribe := store.Subscribe(func(s State) {
		seen = append(seen, s.Tools.Output)
	})

	store.Dispatch(Action{Kind: SetOutput, Value: "a"})
	unsubscribe()
	store.Dispatch(Action{Kind: SetOutput, Value: "b"})

	assert.Equal(t, []string{"a"}, seen)
	assert.Equal(t, "b", store.Tools().Output)
}
