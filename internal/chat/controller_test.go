// ABOUTME: Tests for the conversation controller
// ABOUTME: End-to-end submit scenarios against httptest stubs: success, 404, empty input, concurrency

package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdeck/askdeck/internal/backend"
	"github.com/askdeck/askdeck/internal/kv"
	"github.com/askdeck/askdeck/internal/notify"
	"github.com/askdeck/askdeck/internal/session"
)

// recordingNotifier captures published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Publish(event notify.Event) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return "test-id"
}

func newTestController(t *testing.T, handler http.Handler) (*Controller, *session.Store, *recordingNotifier, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := backend.New(server.URL, "/api/status", nil)
	sessions := session.NewStore(kv.NewMemory(), 0, nil)
	notifier := &recordingNotifier{}
	controller := New(sessions, client, notifier, nil)
	return controller, sessions, notifier, server.Close
}

func TestController_Submit_Success(t *testing.T) {
	controller, sessions, _, cleanup := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What is X?", req.Question)
		json.NewEncoder(w).Encode(backend.Answer{Answer: "X is a placeholder used in examples."})
	}))
	defer cleanup()

	sess := sessions.Open("rag", nil)
	result, err := controller.Submit(context.Background(), sess, "/api/ask", "What is X?")

	require.NoError(t, err)
	assert.False(t, result.Failed)

	turns := sessions.Turns(sess)
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleUser, turns[0].Role)
	assert.Equal(t, "What is X?", turns[0].Text)
	assert.Equal(t, session.RoleAgent, turns[1].Role)
	assert.Equal(t, "X is a placeholder used in examples.", turns[1].Text)
}

func TestController_Submit_EmptyAnswerGetsPlaceholder(t *testing.T) {
	controller, sessions, _, cleanup := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(backend.Answer{Answer: "   "})
	}))
	defer cleanup()

	sess := sessions.Open("rag", nil)
	result, err := controller.Submit(context.Background(), sess, "/api/ask", "anything?")

	require.NoError(t, err)
	assert.Equal(t, emptyAnswerPlaceholder, result.AgentTurn.Text)
}

func TestController_Submit_NotFound(t *testing.T) {
	controller, sessions, notifier, cleanup := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer cleanup()

	sess := sessions.Open("rag", nil)
	result, err := controller.Submit(context.Background(), sess, "/api/ask", "hello?")

	require.NoError(t, err, "HTTP failures never propagate as faults")
	assert.True(t, result.Failed)

	turns := sessions.Turns(sess)
	require.Len(t, turns, 2, "exactly one agent turn explains the failure")
	assert.Equal(t, session.RoleAgent, turns[1].Role)
	assert.Contains(t, turns[1].Text, "not found")

	require.Len(t, notifier.events, 1)
	assert.Equal(t, notify.KindError, notifier.events[0].Kind)
}

func TestController_Submit_EmptyInput(t *testing.T) {
	var calls int32
	controller, sessions, _, cleanup := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer cleanup()

	sess := sessions.Open("rag", nil)
	_, err := controller.Submit(context.Background(), sess, "/api/ask", "   ")

	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, sessions.Turns(sess), "no turns for empty input")
	assert.Zero(t, atomic.LoadInt32(&calls), "no remote call for empty input")
}

func TestController_Submit_BadRequestUsesDetail(t *testing.T) {
	controller, sessions, _, cleanup := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "question too long"}`))
	}))
	defer cleanup()

	sess := sessions.Open("rag", nil)
	result, err := controller.Submit(context.Background(), sess, "/api/ask", "a very long question")

	require.NoError(t, err)
	assert.Contains(t, result.AgentTurn.Text, "question too long")
}

func TestController_Submit_ServiceUnavailable(t *testing.T) {
	controller, sessions, _, cleanup := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer cleanup()

	sess := sessions.Open("rag", nil)
	result, err := controller.Submit(context.Background(), sess, "/api/ask", "ready yet?")

	require.NoError(t, err)
	assert.Contains(t, result.AgentTurn.Text, "temporarily unavailable")
}

func TestController_Submit_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := backend.New(server.URL, "/api/status", nil)
	sessions := session.NewStore(kv.NewMemory(), 0, nil)
	controller := New(sessions, client, nil, nil)

	sess := sessions.Open("rag", nil)
	result, err := controller.Submit(context.Background(), sess, "/api/ask", "anyone there?")

	require.NoError(t, err)
	assert.True(t, result.Failed)
	assert.Contains(t, result.AgentTurn.Text, "unreachable")
}

func TestController_Submit_ConcurrentSubmissionsBothLand(t *testing.T) {
	controller, sessions, _, cleanup := newTestController(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(backend.Answer{Answer: "answer to " + req.Question})
	}))
	defer cleanup()

	sess := sessions.Open("rag", nil)

	var wg sync.WaitGroup
	for _, q := range []string{"first?", "second?"} {
		wg.Add(1)
		go func(question string) {
			defer wg.Done()
			_, err := controller.Submit(context.Background(), sess, "/api/ask", question)
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()

	// Both exchanges append when each settles; ordering across the two
	// submissions is completion order, so only the count is guaranteed.
	assert.Len(t, sessions.Turns(sess), 4)
}
