package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/scvv/internal/session"
)

// SessionHandler exposes session state and playback control.
type SessionHandler struct {
	session SessionControl
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(s SessionControl) *SessionHandler {
	return &SessionHandler{session: s}
}

// Register registers the session routes with the API.
func (h *SessionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSession",
		Method:      "GET",
		Path:        "/api/v1/session",
		Summary:     "Get session state",
		Description: "Returns the latest snapshot of the playback session",
		Tags:        []string{"Session"},
	}, h.GetSession)

	huma.Register(api, huma.Operation{
		OperationID:   "startSession",
		Method:        "POST",
		Path:          "/api/v1/session/start",
		Summary:       "Start playback",
		Tags:          []string{"Session"},
		DefaultStatus: 202,
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID:   "stopSession",
		Method:        "POST",
		Path:          "/api/v1/session/stop",
		Summary:       "Stop playback",
		Tags:          []string{"Session"},
		DefaultStatus: 202,
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID:   "changeSessionSource",
		Method:        "PUT",
		Path:          "/api/v1/session/source",
		Summary:       "Change source",
		Description:   "Switches the session to a new clip or live stream base URL",
		Tags:          []string{"Session"},
		DefaultStatus: 202,
	}, h.ChangeSource)
}

// GetSessionInput is the input for GET /api/v1/session.
type GetSessionInput struct{}

// GetSessionOutput is the output for GET /api/v1/session.
type GetSessionOutput struct {
	Body session.Snapshot
}

// GetSession returns the current snapshot.
func (h *SessionHandler) GetSession(_ context.Context, _ *GetSessionInput) (*GetSessionOutput, error) {
	return &GetSessionOutput{Body: h.session.Snapshot()}, nil
}

// CommandInput is the input for start and stop.
type CommandInput struct{}

// ChangeSourceInput is the input for PUT /api/v1/session/source.
type ChangeSourceInput struct {
	Body struct {
		URL string `json:"url" minLength:"1" doc:"Base URL of the clip or live stream"`
	}
}

// CommandOutput acknowledges a queued command.
type CommandOutput struct {
	Body struct {
		Command string `json:"command"`
		Queued  bool   `json:"queued"`
	}
}

// Start queues a start command.
func (h *SessionHandler) Start(_ context.Context, _ *CommandInput) (*CommandOutput, error) {
	return h.post(session.Command{Kind: session.CommandStart})
}

// Stop queues a stop command.
func (h *SessionHandler) Stop(_ context.Context, _ *CommandInput) (*CommandOutput, error) {
	return h.post(session.Command{Kind: session.CommandStop})
}

// ChangeSource queues a source change.
func (h *SessionHandler) ChangeSource(_ context.Context, input *ChangeSourceInput) (*CommandOutput, error) {
	return h.post(session.Command{Kind: session.CommandSource, URL: input.Body.URL})
}

func (h *SessionHandler) post(cmd session.Command) (*CommandOutput, error) {
	if err := h.session.Post(cmd); err != nil {
		switch {
		case errors.Is(err, session.ErrClosed):
			return nil, huma.Error409Conflict("session is closed")
		case errors.Is(err, session.ErrCommandQueueFull):
			return nil, huma.Error503ServiceUnavailable("session is busy, retry shortly")
		default:
			return nil, huma.Error400BadRequest(err.Error())
		}
	}
	out := &CommandOutput{}
	out.Body.Command = cmd.Kind.String()
	out.Body.Queued = true
	return out, nil
}
