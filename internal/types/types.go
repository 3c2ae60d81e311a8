package types

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatRequest accepts either a full message history or a single message.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages,omitempty"`
	Message  *string       `json:"message,omitempty"`
}

// Normalize returns the request as a message history. A bare message becomes
// a single user turn. ok is false when neither field carries anything.
func (r ChatRequest) Normalize() ([]ChatMessage, bool) {
	if len(r.Messages) > 0 {
		return r.Messages, true
	}
	if r.Message != nil && strings.TrimSpace(*r.Message) != "" {
		return []ChatMessage{UserMessage(*r.Message)}, true
	}
	return nil, false
}

type ChatMessage struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// UserMessage builds a user turn with one text part.
func UserMessage(text string) ChatMessage {
	return ChatMessage{
		ID:    uuid.NewString(),
		Role:  RoleUser,
		Parts: []Part{{Type: "text", Text: text}},
	}
}

// Text concatenates the text parts of the message.
func (m ChatMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Part is one element of a message. Only text parts are interpreted; every
// other payload is kept raw so malformed or unknown parts never fail decoding.
type Part struct {
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	Raw  json.RawMessage `json:"-"`
}

func (p *Part) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		// not an object: keep it as an untyped part
		*p = Part{Raw: append(json.RawMessage(nil), b...)}
		return nil
	}
	var out Part
	_ = json.Unmarshal(fields["type"], &out.Type)
	_ = json.Unmarshal(fields["text"], &out.Text)
	out.Raw = append(json.RawMessage(nil), b...)
	*p = out
	return nil
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports which collaborators the process was wired with.
type HealthResponse struct {
	Status        string            `json:"status"`
	Collaborators map[string]bool   `json:"collaborators,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
}
