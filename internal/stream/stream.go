// Package stream carries a chat reply to the caller as an ordered sequence of
// typed segments. One Writer serves one response and is not safe for
// concurrent use.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Segment types.
const (
	TypeStart      = "start"
	TypeTextStart  = "text-start"
	TypeTextDelta  = "text-delta"
	TypeTextEnd    = "text-end"
	TypeToolResult = "tool-result"
	TypeFinish     = "finish"
)

// Structured payload names sent with tool-result segments.
const (
	ToolVendorHits    = "vendor_hits"
	ToolVendorDetails = "vendor_details"
	ToolVendorReviews = "vendor_reviews"
	ToolGuide         = "guide"
	ToolWebResults    = "web_results"
)

// ProtocolHeader tells clients which segment protocol the body speaks.
const ProtocolHeader = "x-vercel-ai-ui-message-stream"

type Segment struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId,omitempty"`
	ID        string `json:"id,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Result    any    `json:"result,omitempty"`
}

type Writer interface {
	Start(messageID string) error
	TextStart(id string) error
	TextDelta(id, delta string) error
	TextEnd(id string) error
	ToolResult(tool string, result any) error
	Finish() error
}

// SSE writes segments as server-sent events, one "data:" frame each, and
// ends the body with "data: [DONE]". Once a write fails or the request
// context is done every later call returns that error.
type SSE struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

// NewSSE sets the streaming headers and commits a 200 status.
func NewSSE(ctx context.Context, w http.ResponseWriter) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("stream: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(ProtocolHeader, "v1")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSE{ctx: ctx, w: w, flusher: flusher}, nil
}

func (s *SSE) Start(messageID string) error {
	return s.send(Segment{Type: TypeStart, MessageID: messageID})
}

func (s *SSE) TextStart(id string) error {
	return s.send(Segment{Type: TypeTextStart, ID: id})
}

func (s *SSE) TextDelta(id, delta string) error {
	if delta == "" {
		return s.err
	}
	return s.send(Segment{Type: TypeTextDelta, ID: id, Delta: delta})
}

func (s *SSE) TextEnd(id string) error {
	return s.send(Segment{Type: TypeTextEnd, ID: id})
}

func (s *SSE) ToolResult(tool string, result any) error {
	return s.send(Segment{Type: TypeToolResult, Tool: tool, Result: result})
}

func (s *SSE) Finish() error {
	if err := s.send(Segment{Type: TypeFinish}); err != nil {
		return err
	}
	return s.frame([]byte("[DONE]"))
}

func (s *SSE) send(seg Segment) error {
	if s.err != nil {
		return s.err
	}
	b, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("stream: encode %s: %w", seg.Type, err)
	}
	return s.frame(b)
}

func (s *SSE) frame(payload []byte) error {
	if s.err != nil {
		return s.err
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.err = fmt.Errorf("stream: write: %w", err)
		return s.err
	}
	s.flusher.Flush()
	return nil
}

// Recorder keeps segments in memory.
type Recorder struct {
	mu       sync.Mutex
	Segments []Segment
}

func (r *Recorder) add(seg Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Segments = append(r.Segments, seg)
	return nil
}

func (r *Recorder) Start(messageID string) error {
	return r.add(Segment{Type: TypeStart, MessageID: messageID})
}

func (r *Recorder) TextStart(id string) error {
	return r.add(Segment{Type: TypeTextStart, ID: id})
}

func (r *Recorder) TextDelta(id, delta string) error {
	return r.add(Segment{Type: TypeTextDelta, ID: id, Delta: delta})
}

func (r *Recorder) TextEnd(id string) error {
	return r.add(Segment{Type: TypeTextEnd, ID: id})
}

func (r *Recorder) ToolResult(tool string, result any) error {
	return r.add(Segment{Type: TypeToolResult, Tool: tool, Result: result})
}

func (r *Recorder) Finish() error {
	return r.add(Segment{Type: TypeFinish})
}

// Text concatenates every text delta.
func (r *Recorder) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, s := range r.Segments {
		if s.Type == TypeTextDelta {
			out = append(out, s.Delta...)
		}
	}
	return string(out)
}

// Types lists segment types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		out = append(out, s.Type)
	}
	return out
}

// Result returns the first payload sent under tool.
func (r *Recorder) Result(tool string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.Segments {
		if s.Type == TypeToolResult && s.Tool == tool {
			return s.Result, true
		}
	}
	return nil, false
}
