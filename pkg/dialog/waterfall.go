package dialog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"botframe/pkg/activity"
	"botframe/pkg/telemetry"
	"botframe/pkg/turn"
)

// Frame-state keys for waterfall instances. Values under these keys
// round-trip through JSON persistence between turns.
const (
	stateStepIndex  = "stepIndex"
	stateInstanceID = "instanceId"
	stateOptions    = "options"
	stateValues     = "values"
)

// Step is one stage of a waterfall. A step either suspends the dialog by
// returning EndOfTurn, advances with step.Next, starts a child dialog, or
// finishes the waterfall with step.End.
type Step func(ctx context.Context, step *StepContext) (TurnResult, error)

// Waterfall runs an ordered sequence of steps across turns, persisting
// the current step index so the conversation resumes where it left off.
type Waterfall struct {
	id        string
	steps     []Step
	names     []string
	telemetry telemetry.Client
}

// NewWaterfall builds an empty waterfall. A nil client disables telemetry.
func NewWaterfall(id string, client telemetry.Client) *Waterfall {
	if client == nil {
		client = telemetry.NoopClient{}
	}

	return &Waterfall{id: id, telemetry: client}
}

// AddStep appends a step with an auto-generated "StepXofY" name.
func (w *Waterfall) AddStep(fn Step) *Waterfall {
	return w.AddNamedStep("", fn)
}

// AddNamedStep appends a step under an explicit name for telemetry.
func (w *Waterfall) AddNamedStep(name string, fn Step) *Waterfall {
	w.steps = append(w.steps, fn)
	w.names = append(w.names, name)
	return w
}

func (w *Waterfall) ID() string {
	return w.id
}

// Version changes when the step count changes, so persisted conversations
// notice a redeployed waterfall with a different shape.
func (w *Waterfall) Version() string {
	return fmt.Sprintf("%s:%d", w.id, len(w.steps))
}

// Begin stamps the new frame with a unique instance id and runs step 0.
func (w *Waterfall) Begin(ctx context.Context, dc *Context, options map[string]any) (TurnResult, error) {
	inst := dc.ActiveInstance()
	inst.State[stateInstanceID] = uuid.NewString()
	inst.State[stateValues] = make(map[string]any)
	if options != nil {
		inst.State[stateOptions] = options
	}

	w.telemetry.TrackEvent(telemetry.EventWaterfallStart, map[string]string{
		telemetry.PropertyDialogID:   w.id,
		telemetry.PropertyInstanceID: w.instanceID(inst),
	}, nil)

	return w.runStep(ctx, dc, 0, ReasonBeginCalled, nil)
}

// Continue resumes the suspended waterfall at the step after the one that
// suspended it. Non-message activities leave the dialog suspended.
func (w *Waterfall) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	if dc.TurnContext().Activity().Type != activity.TypeMessage {
		return EndOfTurn, nil
	}

	return w.Resume(ctx, dc, ReasonContinueCalled, dc.TurnContext().Activity())
}

// Resume advances past the persisted step index, carrying the result of
// the awaited input or child dialog into the next step.
func (w *Waterfall) Resume(ctx context.Context, dc *Context, reason Reason, result any) (TurnResult, error) {
	inst := dc.ActiveInstance()
	return w.runStep(ctx, dc, intFromState(inst.State[stateStepIndex])+1, reason, result)
}

// End reports the terminal telemetry event for the instance. Cancellation
// additionally records the step the waterfall was cancelled at.
func (w *Waterfall) End(_ context.Context, _ *turn.Context, instance *Instance, reason Reason) error {
	switch reason {
	case ReasonCancelCalled:
		w.telemetry.TrackEvent(telemetry.EventWaterfallCancel, map[string]string{
			telemetry.PropertyDialogID:   w.id,
			telemetry.PropertyInstanceID: w.instanceID(instance),
			telemetry.PropertyStepName:   w.stepName(intFromState(instance.State[stateStepIndex])),
		}, nil)
	case ReasonEndCalled:
		w.telemetry.TrackEvent(telemetry.EventWaterfallComplete, map[string]string{
			telemetry.PropertyDialogID:   w.id,
			telemetry.PropertyInstanceID: w.instanceID(instance),
		}, nil)
	}

	return nil
}

func (w *Waterfall) OnEvent(context.Context, *Context, Event) (bool, error) {
	return false, nil
}

// runStep persists the step index and invokes the step. The step's
// telemetry event is announced once the step commits to an outcome: a
// step that cancels the stack never announces, so the cancel event
// carries the step's name instead. Running past the last step ends the
// waterfall with the final result.
func (w *Waterfall) runStep(ctx context.Context, dc *Context, index int, reason Reason, result any) (TurnResult, error) {
	if index >= len(w.steps) {
		return dc.End(ctx, result)
	}

	inst := dc.ActiveInstance()
	inst.State[stateStepIndex] = index

	step := &StepContext{
		waterfall: w,
		dc:        dc,
		inst:      inst,
		index:     index,
		reason:    reason,
		result:    result,
		options:   mapFromState(inst.State[stateOptions]),
		values:    w.valuesFor(inst),
	}

	turnResult, err := w.steps[index](ctx, step)
	if err == nil {
		step.announce()
	}
	return turnResult, err
}

func (w *Waterfall) stepName(index int) string {
	if index >= 0 && index < len(w.names) && w.names[index] != "" {
		return w.names[index]
	}
	return fmt.Sprintf("Step%dof%d", index+1, len(w.steps))
}

func (w *Waterfall) instanceID(inst *Instance) string {
	id, _ := inst.State[stateInstanceID].(string)
	return id
}

// valuesFor returns the frame's cross-step value bag, creating it when
// the frame predates one or it was lost in persistence.
func (w *Waterfall) valuesFor(inst *Instance) map[string]any {
	if values := mapFromState(inst.State[stateValues]); values != nil {
		return values
	}

	values := make(map[string]any)
	inst.State[stateValues] = values
	return values
}

func mapFromState(value any) map[string]any {
	m, _ := value.(map[string]any)
	return m
}

// StepContext carries one waterfall step's inputs and the operations a
// step may use to move the conversation forward.
type StepContext struct {
	waterfall *Waterfall
	dc        *Context
	inst      *Instance
	index     int
	reason    Reason
	result    any
	options   map[string]any
	values    map[string]any
	announced bool
}

// announce emits the step's telemetry event. It fires at most once, just
// before the step's first stack operation or when the step suspends.
func (sc *StepContext) announce() {
	if sc.announced {
		return
	}
	sc.announced = true

	sc.waterfall.telemetry.TrackEvent(telemetry.EventWaterfallStep, map[string]string{
		telemetry.PropertyDialogID:   sc.waterfall.id,
		telemetry.PropertyInstanceID: sc.waterfall.instanceID(sc.inst),
		telemetry.PropertyStepName:   sc.waterfall.stepName(sc.index),
	}, nil)
}

// Index is the zero-based position of the running step.
func (sc *StepContext) Index() int {
	return sc.index
}

// Reason records why this step is running.
func (sc *StepContext) Reason() Reason {
	return sc.reason
}

// Result is the awaited value carried into this step: the inbound
// activity on a resumed turn, a child dialog's result, or the value
// passed to Next.
func (sc *StepContext) Result() any {
	return sc.result
}

// Options returns the options the waterfall was begun with.
func (sc *StepContext) Options() map[string]any {
	return sc.options
}

// Values is a mutable bag persisted with the frame, for passing data
// between steps across turns.
func (sc *StepContext) Values() map[string]any {
	return sc.values
}

// Context returns the current turn context.
func (sc *StepContext) Context() *turn.Context {
	return sc.dc.TurnContext()
}

// DialogContext returns the dialog context driving this waterfall.
func (sc *StepContext) DialogContext() *Context {
	return sc.dc
}

// Next advances to the following step within the same turn, passing
// result as the next step's awaited value.
func (sc *StepContext) Next(ctx context.Context, result any) (TurnResult, error) {
	sc.announce()
	return sc.waterfall.runStep(ctx, sc.dc, sc.index+1, ReasonNextCalled, result)
}

// Begin starts a child dialog on top of this waterfall; the child's
// result arrives in the following step when it ends.
func (sc *StepContext) Begin(ctx context.Context, dialogID string, options map[string]any) (TurnResult, error) {
	sc.announce()
	return sc.dc.Begin(ctx, dialogID, options)
}

// End finishes the waterfall early with the given result.
func (sc *StepContext) End(ctx context.Context, result any) (TurnResult, error) {
	sc.announce()
	return sc.dc.End(ctx, result)
}

// Replace swaps this waterfall for another dialog in place.
func (sc *StepContext) Replace(ctx context.Context, dialogID string, options map[string]any) (TurnResult, error) {
	sc.announce()
	return sc.dc.Replace(ctx, dialogID, options)
}

// CancelAll unwinds the entire dialog stack. The cancelling step's own
// telemetry event is superseded by the cancel event, which names it.
func (sc *StepContext) CancelAll(ctx context.Context) (TurnResult, error) {
	sc.announced = true
	return sc.dc.CancelAll(ctx)
}
