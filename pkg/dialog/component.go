package dialog

import (
	"context"
	"encoding/json"
	"fmt"

	"botframe/pkg/telemetry"
	"botframe/pkg/turn"
)

// Frame-state key holding a component's inner dialog stack.
const stateInnerDialogs = "dialogState"

// EventHandler decides whether an event bubbling out of a container's
// inner dialogs is handled at the container level.
type EventHandler func(ctx context.Context, dc *Context, e Event) (bool, error)

// Component hosts a private dialog set behind a single dialog id. On the
// outer stack it occupies one frame; its children run on an inner stack
// persisted inside that frame, driven through a child context so events
// the children leave unhandled bubble up to the component.
type Component struct {
	id        string
	dialogs   *Set
	initialID string
	handler   EventHandler
}

// NewComponent builds an empty component. A nil client disables telemetry
// for the inner dialogs.
func NewComponent(id string, client telemetry.Client) *Component {
	return &Component{id: id, dialogs: NewSet(client)}
}

// Add registers a dialog in the component's private set. The first dialog
// added is the one started when the component begins.
func (c *Component) Add(d Dialog) error {
	if err := c.dialogs.Add(d); err != nil {
		return err
	}
	if c.initialID == "" {
		c.initialID = d.ID()
	}
	return nil
}

// OnBubbledEvent registers the handler consulted when inner dialogs
// decline a bubbled event.
func (c *Component) OnBubbledEvent(fn EventHandler) *Component {
	c.handler = fn
	return c
}

func (c *Component) ID() string {
	return c.id
}

// InnerDialogs returns the component's private dialog set.
func (c *Component) InnerDialogs() *Set {
	return c.dialogs
}

// Version covers the inner dialog set, so redefining any child marks
// resumed conversations as version-changed.
func (c *Component) Version() string {
	return c.id + ":" + c.dialogs.Version()
}

// Begin starts the component's initial dialog on a fresh inner stack.
func (c *Component) Begin(ctx context.Context, dc *Context, options map[string]any) (TurnResult, error) {
	if c.initialID == "" {
		return TurnResult{}, fmt.Errorf("component %q has no dialogs", c.id)
	}

	inner := &State{}
	dc.ActiveInstance().State[stateInnerDialogs] = inner

	cdc, err := NewChildContext(dc, c.dialogs, inner)
	if err != nil {
		return TurnResult{}, err
	}

	result, err := cdc.Begin(ctx, c.initialID, options)
	if err != nil {
		return TurnResult{}, err
	}

	return c.reconcile(ctx, dc, result)
}

// Continue resumes the inner stack with the current turn's activity.
func (c *Component) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	cdc, err := c.childContext(dc)
	if err != nil {
		return TurnResult{}, err
	}

	result, err := cdc.Continue(ctx)
	if err != nil {
		return TurnResult{}, err
	}

	return c.reconcile(ctx, dc, result)
}

// Resume treats a result arriving from the outer stack like an inbound
// continuation of the inner stack.
func (c *Component) Resume(ctx context.Context, dc *Context, _ Reason, _ any) (TurnResult, error) {
	return c.Continue(ctx, dc)
}

// End cascades cancellation into the inner stack so each child's End
// hook runs exactly once before the component frame is discarded.
func (c *Component) End(ctx context.Context, tctx *turn.Context, instance *Instance, reason Reason) error {
	if reason != ReasonCancelCalled {
		return nil
	}

	inner, err := c.innerState(instance)
	if err != nil {
		return err
	}

	for i := len(inner.Stack) - 1; i >= 0; i-- {
		if d, ok := c.dialogs.Find(inner.Stack[i].ID); ok {
			if err := d.End(ctx, tctx, inner.Stack[i], reason); err != nil {
				return err
			}
		}
	}
	inner.Stack = nil
	return nil
}

// OnEvent consults the registered bubbled-event handler.
func (c *Component) OnEvent(ctx context.Context, dc *Context, e Event) (bool, error) {
	if c.handler == nil {
		return false, nil
	}
	return c.handler(ctx, dc, e)
}

// reconcile maps the inner stack's outcome onto the outer frame: a
// finished or emptied inner stack ends the component, a cancelled one
// removes the component frame without resuming what is beneath it.
func (c *Component) reconcile(ctx context.Context, dc *Context, result TurnResult) (TurnResult, error) {
	switch result.Status {
	case StatusComplete, StatusEmpty:
		return dc.End(ctx, result.Result)
	case StatusCancelled:
		if err := dc.popActive(ctx, ReasonCancelCalled); err != nil {
			return TurnResult{}, err
		}
		return TurnResult{Status: StatusCancelled}, nil
	default:
		return result, nil
	}
}

func (c *Component) childContext(dc *Context) (*Context, error) {
	inner, err := c.innerState(dc.ActiveInstance())
	if err != nil {
		return nil, err
	}
	return NewChildContext(dc, c.dialogs, inner)
}

// innerState reads the frame's inner stack, converting it back from the
// plain map shape it takes on after a JSON persistence round trip.
func (c *Component) innerState(instance *Instance) (*State, error) {
	switch v := instance.State[stateInnerDialogs].(type) {
	case *State:
		return v, nil
	case nil:
		inner := &State{}
		instance.State[stateInnerDialogs] = inner
		return inner, nil
	default:
		blob, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode inner dialog state for %q: %w", c.id, err)
		}
		inner := &State{}
		if err := json.Unmarshal(blob, inner); err != nil {
			return nil, fmt.Errorf("decode inner dialog state for %q: %w", c.id, err)
		}
		instance.State[stateInnerDialogs] = inner
		return inner, nil
	}
}
