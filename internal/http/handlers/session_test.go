package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/scvv/internal/session"
)

type fakeSession struct {
	mu     sync.Mutex
	snap   session.Snapshot
	posted []session.Command
	err    error
}

func (f *fakeSession) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) Post(cmd session.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.posted = append(f.posted, cmd)
	return nil
}

func TestSessionHandler_GetSession(t *testing.T) {
	_, api := humatest.New(t)
	fake := &fakeSession{snap: session.Snapshot{ID: "abc", Mode: "static", Buffered: 4}}
	NewSessionHandler(fake).Register(api)

	resp := api.Get("/api/v1/session")
	require.Equal(t, http.StatusOK, resp.Code)

	var body session.Snapshot
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "abc", body.ID)
	assert.Equal(t, "static", body.Mode)
	assert.Equal(t, 4, body.Buffered)
}

func TestSessionHandler_Commands(t *testing.T) {
	_, api := humatest.New(t)
	fake := &fakeSession{}
	NewSessionHandler(fake).Register(api)

	assert.Equal(t, http.StatusAccepted, api.Post("/api/v1/session/start").Code)
	assert.Equal(t, http.StatusAccepted, api.Post("/api/v1/session/stop").Code)
	resp := api.Put("/api/v1/session/source", map[string]any{"url": "https://cdn.example.com/live"})
	assert.Equal(t, http.StatusAccepted, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), `"command":"source"`))

	require.Len(t, fake.posted, 3)
	assert.Equal(t, session.CommandStart, fake.posted[0].Kind)
	assert.Equal(t, session.CommandStop, fake.posted[1].Kind)
	assert.Equal(t, session.Command{Kind: session.CommandSource, URL: "https://cdn.example.com/live"}, fake.posted[2])
}

func TestSessionHandler_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"closed", session.ErrClosed, http.StatusConflict},
		{"busy", session.ErrCommandQueueFull, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, api := humatest.New(t)
			NewSessionHandler(&fakeSession{err: tt.err}).Register(api)
			assert.Equal(t, tt.code, api.Post("/api/v1/session/start").Code)
		})
	}

	t.Run("empty url rejected by validation", func(t *testing.T) {
		_, api := humatest.New(t)
		fake := &fakeSession{}
		NewSessionHandler(fake).Register(api)
		resp := api.Put("/api/v1/session/source", map[string]any{"url": ""})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Empty(t, fake.posted)
	})
}
