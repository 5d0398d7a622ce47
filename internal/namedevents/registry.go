// Package namedevents layers typed, named event handlers on top of a
// coordinator's single request handler, so application code can dispatch
// by event name instead of inspecting raw entry content.
package namedevents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itsthedevman/redis-ipc/internal/coordinator"
	"github.com/itsthedevman/redis-ipc/internal/entry"
	"github.com/itsthedevman/redis-ipc/internal/response"
)

// Handler processes one named event's payload and returns a value to be
// encoded as the reply content, or an error to be rejected with.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// envelope is the wire shape carried in an Entry's content.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Registry maps event names to handlers and wires itself into a
// coordinator's single OnRequest callback.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// On registers handler for name. Registering the same name twice
// replaces the previous handler.
func (r *Registry) On(name string, handler Handler) {
	r.handlers[name] = handler
}

// Dispatch decodes e's content as an envelope and routes it to the
// matching handler, calling coord.FulfillRequest/RejectRequest with the
// JSON-encoded result. Intended as a coordinator.RequestHandler.
func (r *Registry) Dispatch(ctx context.Context, coord *coordinator.Coordinator, e entry.Entry) {
	var env envelope
	if err := json.Unmarshal(e.Content, &env); err != nil {
		coord.RejectRequest(ctx, e, []byte(fmt.Sprintf("namedevents: invalid envelope: %v", err)))
		return
	}

	handler, ok := r.handlers[env.Event]
	if !ok {
		coord.RejectRequest(ctx, e, []byte(fmt.Sprintf("namedevents: no handler registered for event %q", env.Event)))
		return
	}

	result, err := handler(ctx, env.Payload)
	if err != nil {
		coord.RejectRequest(ctx, e, []byte(err.Error()))
		return
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		coord.RejectRequest(ctx, e, []byte(fmt.Sprintf("namedevents: failed to encode result: %v", err)))
		return
	}
	coord.FulfillRequest(ctx, e, encoded)
}

// Emit wraps coord.SendToGroup, encoding name/payload into the envelope
// and decoding a fulfilled reply's content as result.
func Emit(ctx context.Context, coord *coordinator.Coordinator, to, name string, payload any, result any) (response.Response, error) {
	encodedPayload, err := json.Marshal(payload)
	if err != nil {
		return response.Response{}, fmt.Errorf("namedevents: failed to encode payload: %w", err)
	}
	content, err := json.Marshal(envelope{Event: name, Payload: encodedPayload})
	if err != nil {
		return response.Response{}, fmt.Errorf("namedevents: failed to encode envelope: %w", err)
	}

	resp := coord.SendToGroup(ctx, content, to)
	if resp.IsFulfilled() && result != nil {
		if err := json.Unmarshal(resp.Value(), result); err != nil {
			return resp, fmt.Errorf("namedevents: failed to decode result: %w", err)
		}
	}
	return resp, nil
}
