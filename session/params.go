package session

import (
	"fmt"
	"net/url"
	"strings"
)

// Params identify a session: which room to join and the display name to
// join it under.
type Params struct {
	Room string
	Name string
}

// ParseParams reads room and name from the query of u. Values are trimmed
// but otherwise taken as given; a missing room yields an empty one.
func ParseParams(u *url.URL) Params {
	q := u.Query()
	return Params{
		Room: strings.TrimSpace(q.Get("room")),
		Name: strings.TrimSpace(q.Get("name")),
	}
}

// ParseAddress is ParseParams for a raw address such as
// "https://example.com/editor?room=abc123&name=alice".
func ParseAddress(raw string) (Params, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Params{}, fmt.Errorf("session: bad address %q: %w", raw, err)
	}
	return ParseParams(u), nil
}
