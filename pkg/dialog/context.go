package dialog

import (
	"context"
	"fmt"

	"botframe/pkg/activity"
	"botframe/pkg/turn"
)

// Context drives one conversation's dialog stack for the current turn.
type Context struct {
	set    *Set
	tctx   *turn.Context
	state  *State
	parent *Context
}

// NewContext binds a dialog set and a persisted stack to the current turn.
func NewContext(set *Set, tctx *turn.Context, state *State) (*Context, error) {
	if set == nil {
		return nil, fmt.Errorf("dialog set is required")
	}
	if tctx == nil {
		return nil, fmt.Errorf("turn context is required")
	}
	if state == nil {
		return nil, fmt.Errorf("dialog state is required")
	}

	return &Context{set: set, tctx: tctx, state: state}, nil
}

// NewChildContext binds a container's inner dialog set and stack to the
// same turn as parent. Events that bubble out of the child are offered to
// the parent context's active dialog.
func NewChildContext(parent *Context, set *Set, state *State) (*Context, error) {
	if parent == nil {
		return nil, fmt.Errorf("parent dialog context is required")
	}

	dc, err := NewContext(set, parent.tctx, state)
	if err != nil {
		return nil, err
	}
	dc.parent = parent
	return dc, nil
}

// Parent returns the enclosing dialog context, or nil at the root.
func (dc *Context) Parent() *Context {
	return dc.parent
}

// TurnContext returns the turn this dialog context is bound to.
func (dc *Context) TurnContext() *turn.Context {
	return dc.tctx
}

// Dialogs returns the dialog set the stack resolves ids against.
func (dc *Context) Dialogs() *Set {
	return dc.set
}

// Stack returns the persisted dialog stack, innermost last.
func (dc *Context) Stack() []*Instance {
	return dc.state.Stack
}

// ActiveInstance returns the innermost stack frame, or nil when the
// stack is empty.
func (dc *Context) ActiveInstance() *Instance {
	if len(dc.state.Stack) == 0 {
		return nil
	}
	return dc.state.Stack[len(dc.state.Stack)-1]
}

// Begin pushes a new instance of the named dialog onto the stack and
// starts it. The instance is stamped with the set's current version so a
// later redeploy of changed dialogs is detectable.
func (dc *Context) Begin(ctx context.Context, dialogID string, options map[string]any) (TurnResult, error) {
	d, ok := dc.set.Find(dialogID)
	if !ok {
		return TurnResult{}, fmt.Errorf("dialog %q is not registered", dialogID)
	}

	inst := &Instance{
		ID:      dialogID,
		State:   make(map[string]any),
		Version: dc.set.Version(),
	}
	dc.state.Stack = append(dc.state.Stack, inst)

	return d.Begin(ctx, dc, options)
}

// Continue resumes the active dialog with the current turn's activity.
// An empty stack yields StatusEmpty so the caller can begin a root dialog.
func (dc *Context) Continue(ctx context.Context) (TurnResult, error) {
	if err := dc.checkVersionChange(ctx); err != nil {
		return TurnResult{}, err
	}

	active := dc.ActiveInstance()
	if active == nil {
		return TurnResult{Status: StatusEmpty}, nil
	}

	d, ok := dc.set.Find(active.ID)
	if !ok {
		return TurnResult{}, fmt.Errorf("active dialog %q is not registered", active.ID)
	}

	// Containers drive their own child context, which raises the event at
	// the innermost frame so interruptions are offered child-first.
	if _, isContainer := d.(Container); !isContainer {
		handled, err := dc.emitActivityReceived(ctx)
		if err != nil {
			return TurnResult{}, err
		}
		if handled {
			return EndOfTurn, nil
		}
	}

	return d.Continue(ctx, dc)
}

// activityReceivedKey guards the once-per-turn activityReceived event.
const activityReceivedKey = "dialog:activityReceived"

// emitActivityReceived offers the inbound activity to the stack as a
// bubbled event before the active dialog consumes it. A dialog that
// handles the event interrupts the turn: the suspended dialog stays
// parked and the activity does not reach it.
func (dc *Context) emitActivityReceived(ctx context.Context) (bool, error) {
	if _, seen := dc.tctx.Value(activityReceivedKey); seen {
		return false, nil
	}
	dc.tctx.SetValue(activityReceivedKey, true)

	return dc.EmitEvent(ctx, Event{Name: EventActivityReceived, Value: dc.tctx.Activity(), Bubble: true})
}

// End pops the active dialog with its result and resumes the frame
// beneath it. When the popped dialog was the last frame the result is
// surfaced to the caller as StatusComplete.
func (dc *Context) End(ctx context.Context, result any) (TurnResult, error) {
	if err := dc.popActive(ctx, ReasonEndCalled); err != nil {
		return TurnResult{}, err
	}

	if active := dc.ActiveInstance(); active != nil {
		d, ok := dc.set.Find(active.ID)
		if !ok {
			return TurnResult{}, fmt.Errorf("active dialog %q is not registered", active.ID)
		}
		return d.Resume(ctx, dc, ReasonEndCalled, result)
	}

	return TurnResult{Status: StatusComplete, Result: result}, nil
}

// CancelAll unwinds the whole stack, innermost first, running each
// dialog's End hook exactly once with the cancellation reason.
func (dc *Context) CancelAll(ctx context.Context) (TurnResult, error) {
	if dc.ActiveInstance() == nil {
		return TurnResult{Status: StatusEmpty}, nil
	}

	for dc.ActiveInstance() != nil {
		if err := dc.popActive(ctx, ReasonCancelCalled); err != nil {
			return TurnResult{}, err
		}
	}

	return TurnResult{Status: StatusCancelled}, nil
}

// Replace swaps the active dialog for a new one in place: the active
// frame is popped without resuming its parent, then the named dialog is
// begun on the same stack.
func (dc *Context) Replace(ctx context.Context, dialogID string, options map[string]any) (TurnResult, error) {
	if err := dc.popActive(ctx, ReasonReplaceCalled); err != nil {
		return TurnResult{}, err
	}

	return dc.Begin(ctx, dialogID, options)
}

// EmitEvent offers an event to the active dialog first and, when it goes
// unhandled and Bubble is set, to each enclosing dialog context in turn.
// It reports whether any dialog handled the event.
func (dc *Context) EmitEvent(ctx context.Context, e Event) (bool, error) {
	if active := dc.ActiveInstance(); active != nil {
		d, ok := dc.set.Find(active.ID)
		if ok {
			handled, err := d.OnEvent(ctx, dc, e)
			if err != nil || handled {
				return handled, err
			}
		}
	}

	if e.Bubble && dc.parent != nil {
		return dc.parent.EmitEvent(ctx, e)
	}

	return false, nil
}

// popActive runs the active dialog's End hook and removes its frame.
func (dc *Context) popActive(ctx context.Context, reason Reason) error {
	active := dc.ActiveInstance()
	if active == nil {
		return nil
	}

	if d, ok := dc.set.Find(active.ID); ok {
		if err := d.End(ctx, dc.tctx, active, reason); err != nil {
			return err
		}
	}

	dc.state.Stack = dc.state.Stack[:len(dc.state.Stack)-1]
	return nil
}

// checkVersionChange compares the active frame's recorded dialog-set
// version with the current one. A mismatch means the bot was redeployed
// with changed dialogs under a live conversation; the condition is
// surfaced as a bubbled versionChanged event and, when no dialog handles
// it, as a trace activity rather than a turn failure.
func (dc *Context) checkVersionChange(ctx context.Context) error {
	active := dc.ActiveInstance()
	if active == nil || active.Version == "" {
		return nil
	}

	current := dc.set.Version()
	if active.Version == current {
		return nil
	}
	active.Version = current

	handled, err := dc.EmitEvent(ctx, Event{Name: EventVersionChanged, Value: active.ID, Bubble: true})
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	trace := activity.CreateTrace(dc.tctx.Activity(), "DialogEvents.VersionChanged", active.ID, "",
		fmt.Sprintf("unhandled dialog version change for %q", active.ID))
	_, err = dc.tctx.SendActivity(ctx, trace)
	return err
}
