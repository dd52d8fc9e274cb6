// Package turn holds the per-request execution context of one bot turn: the
// inbound activity, the typed slots the authentication pipeline fills in,
// and the interceptor chains middleware uses to wrap outbound side effects.
package turn

import (
	"context"
	"errors"

	"botframe/pkg/activity"
	"botframe/pkg/auth"
	"botframe/pkg/connector"
)

// Handler is the bot callback invoked once per turn.
type Handler func(ctx context.Context, tctx *Context) error

// SendHandler wraps the outbound send path. Implementations may inspect or
// rewrite the batch and must call next to continue the chain.
type SendHandler func(ctx context.Context, tctx *Context, activities []*activity.Activity, next func() ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error)

// UpdateHandler wraps the activity update path.
type UpdateHandler func(ctx context.Context, tctx *Context, act *activity.Activity, next func() (activity.ResourceResponse, error)) (activity.ResourceResponse, error)

// DeleteHandler wraps the activity delete path.
type DeleteHandler func(ctx context.Context, tctx *Context, ref *activity.ConversationReference, next func() error) error

// Sender is the adapter-side backend that ultimately performs outbound
// operations for a turn.
type Sender interface {
	SendActivities(ctx context.Context, tctx *Context, activities []*activity.Activity) ([]activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, tctx *Context, act *activity.Activity) (activity.ResourceResponse, error)
	DeleteActivity(ctx context.Context, tctx *Context, ref *activity.ConversationReference) error
}

// Context is the mutable state of one turn. It is created at turn start,
// owned by that turn alone, and discarded at turn end; it is never persisted
// or shared across turns.
type Context struct {
	sender    Sender
	activity  *activity.Activity
	responded bool

	// Slots filled by the turn driver after authentication. Each may be
	// absent depending on how the turn was created.
	Identity         *auth.ClaimsIdentity
	Connector        connector.Client
	UserTokens       *connector.UserTokenClient
	ConnectorFactory connector.Factory
	OAuthScope       string

	invokeResponse *activity.Activity
	buffered       []*activity.Activity

	sendHandlers   []SendHandler
	updateHandlers []UpdateHandler
	deleteHandlers []DeleteHandler

	values map[string]any
}

// New builds a turn context for one inbound activity.
func New(sender Sender, act *activity.Activity) (*Context, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if act == nil {
		return nil, errors.New("activity is required")
	}

	return &Context{sender: sender, activity: act, values: make(map[string]any)}, nil
}

// Activity returns the inbound activity that triggered the turn.
func (t *Context) Activity() *activity.Activity {
	return t.activity
}

// Responded reports whether any non-trace activity has been sent this turn.
func (t *Context) Responded() bool {
	return t.responded
}

// OnSendActivities registers a send interceptor. Handlers run in
// registration order, each wrapping the rest of the chain.
func (t *Context) OnSendActivities(handler SendHandler) *Context {
	if handler != nil {
		t.sendHandlers = append(t.sendHandlers, handler)
	}
	return t
}

// OnUpdateActivity registers an update interceptor.
func (t *Context) OnUpdateActivity(handler UpdateHandler) *Context {
	if handler != nil {
		t.updateHandlers = append(t.updateHandlers, handler)
	}
	return t
}

// OnDeleteActivity registers a delete interceptor.
func (t *Context) OnDeleteActivity(handler DeleteHandler) *Context {
	if handler != nil {
		t.deleteHandlers = append(t.deleteHandlers, handler)
	}
	return t
}

// SendActivity sends one activity and returns the connector's response.
func (t *Context) SendActivity(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	responses, err := t.SendActivities(ctx, act)
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	if len(responses) == 0 {
		return activity.ResourceResponse{}, nil
	}

	return responses[0], nil
}

// SendText sends a plain message activity with the given text.
func (t *Context) SendText(ctx context.Context, text string) (activity.ResourceResponse, error) {
	return t.SendActivity(ctx, activity.NewMessage(text))
}

// SendActivities addresses each activity to the turn's conversation, runs
// the send interceptor chain, and delivers the batch through the sender.
// The returned responses preserve input order, one entry per activity.
func (t *Context) SendActivities(ctx context.Context, activities ...*activity.Activity) ([]activity.ResourceResponse, error) {
	if len(activities) == 0 {
		return nil, errors.New("at least one activity is required")
	}
	for _, act := range activities {
		if act == nil {
			return nil, errors.New("activity must not be nil")
		}
	}

	ref := activity.GetConversationReference(t.activity)
	for _, act := range activities {
		if act.Conversation == nil {
			activity.ApplyConversationReference(act, ref, false)
		}
	}

	final := func() ([]activity.ResourceResponse, error) {
		responses, err := t.sender.SendActivities(ctx, t, activities)
		if err != nil {
			return nil, err
		}
		for _, act := range activities {
			if act.Type != activity.TypeTrace {
				t.responded = true
			}
		}
		return responses, nil
	}

	return chainSend(ctx, t, activities, t.sendHandlers, final)
}

// UpdateActivity replaces a previously sent activity.
func (t *Context) UpdateActivity(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	if act == nil {
		return activity.ResourceResponse{}, errors.New("activity is required")
	}

	final := func() (activity.ResourceResponse, error) {
		return t.sender.UpdateActivity(ctx, t, act)
	}

	return chainUpdate(ctx, t, act, t.updateHandlers, final)
}

// DeleteActivity deletes a previously sent activity by reference.
func (t *Context) DeleteActivity(ctx context.Context, ref *activity.ConversationReference) error {
	if ref == nil {
		return errors.New("conversation reference is required")
	}

	final := func() error {
		return t.sender.DeleteActivity(ctx, t, ref)
	}

	return chainDelete(ctx, t, ref, t.deleteHandlers, final)
}

// InvokeResponse returns the invokeResponse-typed activity captured during
// this turn, if any.
func (t *Context) InvokeResponse() *activity.Activity {
	return t.invokeResponse
}

// SetInvokeResponse records the turn's invoke response. Called by the sender
// when an invokeResponse activity passes through the send path.
func (t *Context) SetInvokeResponse(act *activity.Activity) {
	t.invokeResponse = act
}

// BufferedReplies returns the activities buffered for an expect-replies
// turn, in send order.
func (t *Context) BufferedReplies() []*activity.Activity {
	return t.buffered
}

// BufferReply appends an activity to the expect-replies buffer.
func (t *Context) BufferReply(act *activity.Activity) {
	t.buffered = append(t.buffered, act)
}

// Value returns extension data stored on the turn, for collaborators that
// carry per-turn caches (state management, middleware).
func (t *Context) Value(key string) (any, bool) {
	v, ok := t.values[key]
	return v, ok
}

// SetValue stores extension data on the turn.
func (t *Context) SetValue(key string, value any) {
	t.values[key] = value
}

func chainSend(ctx context.Context, tctx *Context, activities []*activity.Activity, handlers []SendHandler, final func() ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
	if len(handlers) == 0 {
		return final()
	}

	head, rest := handlers[0], handlers[1:]
	return head(ctx, tctx, activities, func() ([]activity.ResourceResponse, error) {
		return chainSend(ctx, tctx, activities, rest, final)
	})
}

func chainUpdate(ctx context.Context, tctx *Context, act *activity.Activity, handlers []UpdateHandler, final func() (activity.ResourceResponse, error)) (activity.ResourceResponse, error) {
	if len(handlers) == 0 {
		return final()
	}

	head, rest := handlers[0], handlers[1:]
	return head(ctx, tctx, act, func() (activity.ResourceResponse, error) {
		return chainUpdate(ctx, tctx, act, rest, final)
	})
}

func chainDelete(ctx context.Context, tctx *Context, ref *activity.ConversationReference, handlers []DeleteHandler, final func() error) error {
	if len(handlers) == 0 {
		return final()
	}

	head, rest := handlers[0], handlers[1:]
	return head(ctx, tctx, ref, func() error {
		return chainDelete(ctx, tctx, ref, rest, final)
	})
}
