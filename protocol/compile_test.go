package protocol

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCompileResponseShape(t *testing.T) {
	var resp CompileResponse
	assert.Equal(t, nil, json.Unmarshal([]byte(`{"output":""}`), &resp))
	assert.Equal(t, true, resp.Succeeded())

	resp = CompileResponse{}
	assert.Equal(t, nil, json.Unmarshal([]byte(`{"error":"time limit exceeded"}`), &resp))
	assert.Equal(t, false, resp.Succeeded())

	raw, _ := json.Marshal(OutputResponse(""))
	assert.Equal(t, `{"output":""}`, string(raw))
	raw, _ = json.Marshal(CompileResponse{Error: "boom"})
	assert.Equal(t, `{"error":"boom"}`, string(raw))
}

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope(EventCompileRequest, CompileRequest{Language: "go", Code: "x", Input: ""})
	assert.Equal(t, nil, err)
	raw, _ := json.Marshal(env)
	assert.Equal(t, `{"event":"compile-request","data":{"language":"go","code":"x","input":""}}`, string(raw))

	env, err = NewEnvelope(EventCompileStarted, nil)
	assert.Equal(t, nil, err)
	raw, _ = json.Marshal(env)
	assert.Equal(t, `{"event":"compile-started"}`, string(raw))
}

func TestModelKeyString(t *testing.T) {
	assert.Equal(t, "Code-n-Collab/abc123", ModelKey{Collection: "Code-n-Collab", ID: "abc123"}.String())
}
