package bridge

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askrelay/daemon/internal/api"
)

func newTestServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	server := api.NewServer("127.0.0.1:0", testLogger())
	NewHandlers(f.bridge, testLogger()).Register(server)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestNotifyEndpoint(t *testing.T) {
	f := newFixture()
	ts := newTestServer(t, f)

	resp := postJSON(t, ts.URL+"/notify", `{
		"session_id": "sess-1",
		"tmux_location": "main:0.1",
		"cwd": "/home/dev/proj",
		"tool_input": {
			"questions": [
				{"question": "Proceed?", "options": [{"label": "Yes"}, {"label": "No"}]}
			]
		}
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.channel.sends, 1)
	assert.Contains(t, f.channel.sends[0].text, "Proceed?")
	assert.Equal(t, 1, f.store.Len())
}

func TestNotifyRejectsEmptyQuestions(t *testing.T) {
	f := newFixture()
	ts := newTestServer(t, f)

	resp := postJSON(t, ts.URL+"/notify", `{"session_id": "s", "tool_input": {"questions": []}}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, f.store.Len())
}

func TestNotifyRejectsMalformedJSON(t *testing.T) {
	f := newFixture()
	ts := newTestServer(t, f)

	resp := postJSON(t, ts.URL+"/notify", `{not json`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotifySendFailureReturnsBadGateway(t *testing.T) {
	f := newFixture()
	f.channel.sendErr = errors.New("telegram down")
	ts := newTestServer(t, f)

	resp := postJSON(t, ts.URL+"/notify", `{
		"tool_input": {"questions": [{"question": "Proceed?", "options": [{"label": "Yes"}]}]}
	}`)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 0, f.store.Len())
}

func TestStopEndpoint(t *testing.T) {
	f := newFixture()
	ts := newTestServer(t, f)

	resp := postJSON(t, ts.URL+"/stop", `{"tmux_location": "main:0.1", "stop_reason": "end_of_turn"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, f.channel.sends, 1)
	require.Equal(t, 1, f.store.Len())

	pending := f.store.GetByMessageID(f.channel.nextID)
	require.NotNil(t, pending)
	assert.Equal(t, "main:0.1", pending.TmuxLocation)
	assert.True(t, pending.FreeText())
}

func TestUnknownPostPathFallsBackToNotify(t *testing.T) {
	f := newFixture()
	ts := newTestServer(t, f)

	resp := postJSON(t, ts.URL+"/hooks/ask", `{
		"session_id": "sess-2",
		"tmux_location": "main:0.2",
		"tool_input": {"questions": [{"question": "Deploy?", "options": [{"label": "Ship it"}]}]}
	}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, f.store.Len())
}
