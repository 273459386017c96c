// Package protocol holds the JSON frames exchanged over the collaboration
// and compile websockets.
package protocol

import (
	"github.com/Anshjain123/Code-N-Collab/textop"
)

// Collab frame types.
const (
	TypeHello    = "hello"    // server -> client, after the upgrade
	TypeOpen     = "open"     // client -> server, open or create a model
	TypeOpened   = "opened"   // server -> client, reply to open
	TypeOp       = "op"       // both ways, an edit on a model element
	TypeAck      = "ack"      // server -> client, the sender's op was sequenced
	TypePresence = "presence" // server -> client, a participant joined or left
	TypeClose    = "close"    // client -> server, detach from a model
	TypeError    = "error"    // server -> client
)

// ModelKey addresses one model on the backend.
type ModelKey struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

func (k ModelKey) String() string {
	return k.Collection + "/" + k.ID
}

// Participant is one anonymous session attached to a model.
type Participant struct {
	SessionID string `json:"sessionID"`
	Username  string `json:"username"`
}

// Frame is the envelope of every message on the collab socket. Only the
// fields relevant to Type are set.
type Frame struct {
	Type  string   `json:"type"`
	ReqID string   `json:"reqID,omitempty"`
	Model ModelKey `json:"model,omitempty"`

	// hello
	SessionID string `json:"sessionID,omitempty"`
	Username  string `json:"username,omitempty"`

	// open
	Ephemeral bool              `json:"ephemeral,omitempty"`
	Data      map[string]string `json:"data,omitempty"`

	// opened
	Participants []Participant `json:"participants,omitempty"`

	// op / ack
	Element   string     `json:"element,omitempty"`
	Version   int        `json:"version,omitempty"`
	Op        *textop.Op `json:"op,omitempty"`
	ClientSeq int        `json:"clientSeq,omitempty"`

	// presence
	Joined bool `json:"joined,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}
