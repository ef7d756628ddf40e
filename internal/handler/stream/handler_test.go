package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/lumi/backend/internal/service/remote"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/internal/storage/kv"
)

type sseEvent struct {
	name string
	data string
}

func parseEvents(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func names(events []sseEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		if e.name != EventListening {
			out = append(out, e.name)
		}
	}
	return out
}

func setup(t *testing.T, consent bool) (http.Handler, string) {
	t.Helper()
	ctx := context.Background()
	svc := session.NewService(kv.NewMemoryStore(), remote.Disabled{})
	t.Cleanup(svc.Close)

	info, err := svc.Create(ctx, "alice")
	require.NoError(t, err)
	if consent {
		m, err := svc.Profile(ctx, "alice")
		require.NoError(t, err)
		require.NoError(t, m.Grant(ctx))
	}

	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	return r, info.ID
}

func stream(r http.Handler, sessionID, message string) *httptest.ResponseRecorder {
	target := "/stream/" + sessionID
	if message != "" {
		target += "?message=" + url.QueryEscape(message)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
	return resp
}

func TestStreamReply(t *testing.T) {
	r, id := setup(t, true)

	resp := stream(r, id, "I'm scared")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	events := parseEvents(t, resp.Body.String())
	assert.Equal(t, []string{EventStart, EventEmotion, EventMessage, EventEnd}, names(events))

	var emo map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-3].data), &emo))
	assert.Equal(t, "fear", emo["label"])

	var msg messageEvent
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2].data), &msg))
	assert.True(t, msg.Fallback)
	assert.Contains(t, msg.Reply, "anxious")
}

func TestStreamCrisis(t *testing.T) {
	r, id := setup(t, false)

	resp := stream(r, id, "I might overdose")
	require.Equal(t, http.StatusOK, resp.Code)

	events := parseEvents(t, resp.Body.String())
	assert.Equal(t, []string{EventStart, EventCrisis, EventEnd}, names(events))

	var got crisisEvent
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2].data), &got))
	assert.True(t, got.Crisis)
	assert.NotEmpty(t, got.Helplines)
}

func TestStreamValidation(t *testing.T) {
	r, id := setup(t, false)

	assert.Equal(t, http.StatusBadRequest, stream(r, id, "").Code)
	assert.Equal(t, http.StatusNotFound, stream(r, "missing", "hi").Code)
}
