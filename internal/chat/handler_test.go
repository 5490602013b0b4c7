package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	myMiddleware "intern-chat/internal/middleware"
)

// testIdentity injects the identity the way the JWT middleware does,
// taken from a header so each request can act as a different user.
func testIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get("X-Identity")
		if code == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), myMiddleware.IdentityKey, code)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTestServer(t *testing.T) (*httptest.Server, *captureSink) {
	t.Helper()
	store := newMemStore()
	sink := &captureSink{}
	dispatcher := NewDispatcher(store, sink)
	handler := NewHandler(nil, dispatcher)

	r := chi.NewRouter()
	r.Use(testIdentity)
	handler.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sink
}

func do(t *testing.T, srv *httptest.Server, identity, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-Identity", identity)
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSendMessageEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, "SV001", http.MethodPost, "/api/send-message",
		SendRequest{To: "SV002", Message: "hello over REST", TempID: "tok-9"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	m := decode[Message](t, resp)
	assert.NotZero(t, m.ID)
	assert.Equal(t, "tok-9", m.ClientToken)

	// Self-addressed: validation error, 400.
	resp = do(t, srv, "SV001", http.MethodPost, "/api/send-message",
		SendRequest{To: "SV001", Message: "hi me"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditEndpointStatusCodes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, "SV001", http.MethodPost, "/api/send-message",
		SendRequest{To: "SV002", Message: "original"})
	m := decode[Message](t, resp)

	// Wrong actor: 403.
	resp = do(t, srv, "SV002", http.MethodPut, fmt.Sprintf("/api/message/%d", m.ID),
		map[string]string{"message": "hijacked"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Unknown id: 404.
	resp = do(t, srv, "SV001", http.MethodPut, "/api/message/424242",
		map[string]string{"message": "ghost"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Sender: 200 with the edited record.
	resp = do(t, srv, "SV001", http.MethodPut, fmt.Sprintf("/api/message/%d", m.ID),
		map[string]string{"message": "fixed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	edited := decode[Message](t, resp)
	assert.Equal(t, "fixed", edited.Body)
	assert.NotNil(t, edited.EditedAt)
}

func TestRecallEndpointHidesContent(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, "SV001", http.MethodPost, "/api/send-message",
		SendRequest{To: "SV002", Message: "to be recalled"})
	m := decode[Message](t, resp)
	resp = do(t, srv, "SV001", http.MethodPost, "/api/send-message",
		SendRequest{To: "SV002", Message: "stays"})
	resp.Body.Close()

	resp = do(t, srv, "SV001", http.MethodDelete, fmt.Sprintf("/api/message/%d", m.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, srv, "SV002", http.MethodGet, "/api/messages/SV001", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decode[[]Message](t, resp)
	require.Len(t, msgs, 2, "recall keeps the record in the conversation")
	assert.Equal(t, RecalledPlaceholder, msgs[0].Body)
	assert.Nil(t, msgs[0].AttachmentURL)
	assert.Equal(t, "stays", msgs[1].Body)
}

func TestReactionEndpointToggle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, srv, "SV001", http.MethodPost, "/api/send-message",
		SendRequest{To: "SV002", Message: "react"})
	m := decode[Message](t, resp)

	path := fmt.Sprintf("/api/message/%d/reaction", m.ID)
	resp = do(t, srv, "SV002", http.MethodPost, path, map[string]string{"emoji": "🔥"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[Message](t, resp)
	assert.Len(t, first.Reactions, 1)

	resp = do(t, srv, "SV002", http.MethodPost, path, map[string]string{"emoji": "🔥"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[Message](t, resp)
	assert.Empty(t, second.Reactions, "same actor + emoji toggles off")
}

func TestUnreadFlowOverREST(t *testing.T) {
	srv, sink := newTestServer(t)

	for _, body := range []string{"a", "b", "c"} {
		resp := do(t, srv, "SV001", http.MethodPost, "/api/send-message",
			SendRequest{To: "SV002", Message: body})
		resp.Body.Close()
	}

	resp := do(t, srv, "SV002", http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summaries := decode[[]ConversationSummary](t, resp)
	require.Len(t, summaries, 1)
	assert.Equal(t, "SV001", summaries[0].Counterpart)
	assert.Equal(t, 3, summaries[0].UnreadCount)

	// Opening the conversation resets the count and notifies SV001.
	sink.reset()
	resp = do(t, srv, "SV002", http.MethodGet, "/api/messages/SV001", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reads := sink.forTarget("SV001")
	require.Len(t, reads, 1)
	assert.Equal(t, EventMessagesRead, reads[0].Event)

	resp = do(t, srv, "SV002", http.MethodGet, "/api/conversations", nil)
	summaries = decode[[]ConversationSummary](t, resp)
	assert.Equal(t, 0, summaries[0].UnreadCount)
}

func TestMissingIdentityRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/conversations", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
