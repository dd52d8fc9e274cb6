package dialog

import (
	"context"

	"botframe/pkg/state"
	"botframe/pkg/turn"
)

// Run continues the conversation's active dialog, or begins the named
// root dialog when the stack is empty.
func Run(ctx context.Context, dc *Context, rootDialogID string) (TurnResult, error) {
	result, err := dc.Continue(ctx)
	if err != nil {
		return TurnResult{}, err
	}

	if result.Status == StatusEmpty {
		return dc.Begin(ctx, rootDialogID, nil)
	}

	return result, nil
}

// RunWithState is the per-turn entry point for bots keeping their dialog
// stack in a state property: it loads the stack, drives the dialogs, and
// writes the mutated stack back to the property.
func RunWithState(ctx context.Context, set *Set, tctx *turn.Context, prop *state.Property[State], rootDialogID string) (TurnResult, error) {
	dialogState, err := prop.Get(ctx, tctx, func() *State { return &State{} })
	if err != nil {
		return TurnResult{}, err
	}

	dc, err := NewContext(set, tctx, dialogState)
	if err != nil {
		return TurnResult{}, err
	}

	result, err := Run(ctx, dc, rootDialogID)
	if err != nil {
		return TurnResult{}, err
	}

	if err := prop.Set(ctx, tctx, dialogState); err != nil {
		return TurnResult{}, err
	}

	return result, nil
}
