package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-chat-backend/internal/chat"
	"vendor-chat-backend/internal/config"
	"vendor-chat-backend/internal/intent"
	"vendor-chat-backend/internal/store"
	"vendor-chat-backend/internal/stream"
	"vendor-chat-backend/internal/types"
	"vendor-chat-backend/internal/vendor"
)

type recordingChat struct {
	got []types.ChatMessage
}

func (c *recordingChat) Handle(_ context.Context, msgs []types.ChatMessage, w stream.Writer) error {
	c.got = msgs
	_ = w.Start("m1")
	_ = w.TextStart("t1")
	_ = w.TextDelta("t1", "hello")
	_ = w.TextEnd("t1")
	return w.Finish()
}

func newTestServer(t *testing.T, h ChatHandler) *httptest.Server {
	t.Helper()
	s, err := NewServer(config.Config{AllowedOrigin: "*"}, Deps{
		Chat:          h,
		Logger:        zerolog.Nop(),
		Collaborators: map[string]bool{"database": false, "vector_search": true},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, ts *httptest.Server, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestNewServerRequiresChat(t *testing.T) {
	_, err := NewServer(config.Config{}, Deps{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &recordingChat{})
	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got types.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", got.Status)
	assert.True(t, got.Collaborators["vector_search"])
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return errors.New("connection refused") }

func TestHealthDegraded(t *testing.T) {
	s, err := NewServer(config.Config{AllowedOrigin: "*"}, Deps{
		Chat:   &recordingChat{},
		Logger: zerolog.Nop(),
		Checks: map[string]HealthChecker{"database": failingCheck{}},
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var got types.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", got.Status)
	assert.Equal(t, "connection refused", got.Errors["database"])
}

func TestChatBadRequests(t *testing.T) {
	ts := newTestServer(t, &recordingChat{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"messages":`, "invalid JSON body"},
		{"no messages", `{}`, "messages is required"},
		{"blank message", `{"message":"   "}`, "messages is required"},
		{"assistant only", `{"messages":[{"id":"a","role":"assistant","parts":[{"type":"text","text":"hi"}]}]}`, "no user message with text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := post(t, ts, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var e types.ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &e))
			assert.Equal(t, tc.want, e.Error)
		})
	}
}

func TestChatStreamsSegments(t *testing.T) {
	h := &recordingChat{}
	ts := newTestServer(t, h)

	resp, body := post(t, ts, `{"message":"hi"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "v1", resp.Header.Get(stream.ProtocolHeader))
	assert.NotEmpty(t, resp.Header.Get(SessionHeader))

	require.Len(t, h.got, 1)
	assert.Equal(t, "hi", h.got[0].Text())
	assert.Contains(t, body, `data: {"type":"text-delta","id":"t1","delta":"hello"}`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestChatKeepsSessionID(t *testing.T) {
	ts := newTestServer(t, &recordingChat{})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/chat", strings.NewReader(`{"message":"hi"}`))
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-42"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "sess-42", resp.Header.Get(SessionHeader))
}

func TestChatEndToEnd(t *testing.T) {
	ms := store.NewMemoryStore(nil)
	ms.Put(
		vendor.VendorRecord{ID: "c1", Name: "Royal Caterers", Category: "caterer", City: "Mumbai"},
		vendor.VendorRecord{ID: "c2", Name: "Spice Route", Category: "caterer", City: "Mumbai"},
	)
	o := chat.New(chat.Options{
		Classifier: intent.NewClassifier(intent.DefaultLexicon()),
		Resolver:   vendor.NewResolver(nil, ms, nil),
		Store:      ms,
		Logger:     zerolog.Nop(),
	})
	ts := newTestServer(t, o)

	resp, body := post(t, ts, `{"messages":[{"id":"u1","role":"user","parts":[{"type":"text","text":"caterers in mumbai"}]}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"type":"tool-result","tool":"vendor_hits"`)
	assert.Contains(t, body, "Royal Caterers")
	assert.Contains(t, body, `{"type":"finish"}`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}
