package protocol

import "encoding/json"

// Compile socket events.
const (
	EventCompileRequest  = "compile-request"
	EventCompileResponse = "compile-response"
	EventCompileStarted  = "compile-started"
)

// Envelope wraps one event on the compile socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CompileRequest asks the execution service to run code.
type CompileRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input"`
}

// CompileResponse carries the outcome of a run. A response is accepted
// only when Output is present; any other shape counts as a failure.
type CompileResponse struct {
	Output *string `json:"output,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Succeeded reports whether the response carries an output field. Presence
// is the rule: {"output": ""} is a program that printed nothing, not a
// failure.
func (r CompileResponse) Succeeded() bool {
	return r.Output != nil
}

// OutputResponse builds an accepted response.
func OutputResponse(output string) CompileResponse {
	return CompileResponse{Output: &output}
}

// NewEnvelope marshals data under event.
func NewEnvelope(event string, data any) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = raw
	return env, nil
}
