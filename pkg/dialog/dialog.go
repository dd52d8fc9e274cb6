// Package dialog implements the conversation state machine layer: a
// persisted stack of active dialogs per conversation, resumable waterfall
// step sequences, event bubbling, and version-change detection.
package dialog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"botframe/pkg/telemetry"
	"botframe/pkg/turn"
)

// TurnStatus describes where a dialog turn left the stack.
type TurnStatus string

const (
	// StatusEmpty means the stack has no active dialog.
	StatusEmpty TurnStatus = "empty"
	// StatusWaiting means the active dialog suspended awaiting input.
	StatusWaiting TurnStatus = "waiting"
	// StatusComplete means the outermost dialog finished with a result.
	StatusComplete TurnStatus = "complete"
	// StatusCancelled means the stack was unwound by a cancellation.
	StatusCancelled TurnStatus = "cancelled"
)

// TurnResult is the outcome of driving the dialog stack for one turn.
type TurnResult struct {
	Status TurnStatus
	Result any
}

// EndOfTurn suspends the active dialog until the next inbound turn.
var EndOfTurn = TurnResult{Status: StatusWaiting}

// Reason records why a dialog method was called.
type Reason string

const (
	ReasonBeginCalled    Reason = "beginCalled"
	ReasonContinueCalled Reason = "continueCalled"
	ReasonNextCalled     Reason = "nextCalled"
	ReasonEndCalled      Reason = "endCalled"
	ReasonCancelCalled   Reason = "cancelCalled"
	ReasonReplaceCalled  Reason = "replaceCalled"
)

// Dialog event names.
const (
	EventActivityReceived = "activityReceived"
	EventVersionChanged   = "versionChanged"
)

// Event is raised into the dialog stack and offered child-first, then to
// enclosing containers when Bubble is set.
type Event struct {
	Name   string
	Value  any
	Bubble bool
}

// Instance is one frame of the persisted dialog stack. State is an opaque
// bag that must round-trip exactly through JSON across save/load cycles.
type Instance struct {
	ID      string         `json:"id"`
	State   map[string]any `json:"state"`
	Version string         `json:"version,omitempty"`
}

// State is the persisted dialog stack for one conversation. The innermost
// (active) dialog is the last element.
type State struct {
	Stack []*Instance `json:"stack"`
}

// Dialog is a named, resumable unit of conversational logic.
type Dialog interface {
	ID() string
	// Version identifies the dialog's current definition; a change between
	// turns triggers a versionChanged event on resumed conversations.
	Version() string
	Begin(ctx context.Context, dc *Context, options map[string]any) (TurnResult, error)
	Continue(ctx context.Context, dc *Context) (TurnResult, error)
	Resume(ctx context.Context, dc *Context, reason Reason, result any) (TurnResult, error)
	// End is the lifecycle hook invoked when the dialog leaves the stack,
	// with the reason distinguishing normal completion from cancellation.
	End(ctx context.Context, tctx *turn.Context, instance *Instance, reason Reason) error
	OnEvent(ctx context.Context, dc *Context, e Event) (bool, error)
}

// Container is implemented by dialogs that host an inner dialog set and
// drive it through a child context of their own. The stack machinery uses
// it to tell containers apart from leaf dialogs when dispatching events.
type Container interface {
	Dialog
	InnerDialogs() *Set
}

// Set is a registry of dialogs sharing one telemetry client.
type Set struct {
	dialogs   map[string]Dialog
	order     []string
	telemetry telemetry.Client
}

// NewSet builds an empty dialog set. A nil client disables telemetry.
func NewSet(client telemetry.Client) *Set {
	if client == nil {
		client = telemetry.NoopClient{}
	}

	return &Set{dialogs: make(map[string]Dialog), telemetry: client}
}

// Add registers a dialog. Ids must be unique within the set.
func (s *Set) Add(d Dialog) error {
	if d == nil || d.ID() == "" {
		return fmt.Errorf("dialog with a non-empty id is required")
	}
	if _, exists := s.dialogs[d.ID()]; exists {
		return fmt.Errorf("dialog %q is already registered", d.ID())
	}

	s.dialogs[d.ID()] = d
	s.order = append(s.order, d.ID())
	return nil
}

// Find returns the registered dialog with the given id.
func (s *Set) Find(id string) (Dialog, bool) {
	d, ok := s.dialogs[id]
	return d, ok
}

// Telemetry returns the set's telemetry client.
func (s *Set) Telemetry() telemetry.Client {
	return s.telemetry
}

// Version computes an identifier over the registered dialog definitions.
// It changes whenever a dialog is added, removed, or changes its own
// version, letting a deployed bot detect that its dialog set changed
// underneath a resumed conversation.
func (s *Set) Version() string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id+":"+s.dialogs[id].Version())
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:8])
}

// MergeOptions overlays caller-supplied options onto defaults as a total
// merge: every key from both maps appears in the result, and a non-nil
// override wins over the default for the same key.
func MergeOptions(defaults map[string]any, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		if v != nil {
			merged[k] = v
		}
	}

	return merged
}

// intFromState reads an integer that may have round-tripped through JSON.
func intFromState(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
