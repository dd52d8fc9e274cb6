package turn

import (
	"context"
	"errors"
	"testing"

	"botframe/pkg/activity"
)

// recordingSender captures every batch the context hands to its backend.
type recordingSender struct {
	batches [][]*activity.Activity
	fail    error
}

func (s *recordingSender) SendActivities(_ context.Context, _ *Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	s.batches = append(s.batches, activities)
	responses := make([]activity.ResourceResponse, len(activities))
	for i := range activities {
		responses[i] = activity.ResourceResponse{ID: "sent"}
	}
	return responses, nil
}

func (s *recordingSender) UpdateActivity(context.Context, *Context, *activity.Activity) (activity.ResourceResponse, error) {
	return activity.ResourceResponse{ID: "updated"}, nil
}

func (s *recordingSender) DeleteActivity(context.Context, *Context, *activity.ConversationReference) error {
	return nil
}

func inbound() *activity.Activity {
	return &activity.Activity{
		Type:         activity.TypeMessage,
		ID:           "in-1",
		ChannelID:    "msteams",
		ServiceURL:   "https://smba.example.com",
		From:         activity.ChannelAccount{ID: "user-1"},
		Recipient:    activity.ChannelAccount{ID: "bot-1"},
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
	}
}

func TestSendActivityAddressesConversation(t *testing.T) {
	sender := &recordingSender{}
	tctx, err := New(sender, inbound())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	if _, err := tctx.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText error: %v", err)
	}

	if len(sender.batches) != 1 || len(sender.batches[0]) != 1 {
		t.Fatalf("expected one delivered batch, got %v", sender.batches)
	}

	sent := sender.batches[0][0]
	if sent.Conversation == nil || sent.Conversation.ID != "conv-1" {
		t.Fatal("expected activity addressed to turn conversation")
	}
	if sent.ReplyToID != "in-1" {
		t.Fatalf("replyToId = %q, want inbound id", sent.ReplyToID)
	}
	if !tctx.Responded() {
		t.Fatal("expected responded flag after message send")
	}
}

func TestSendActivitiesPreservesOrder(t *testing.T) {
	sender := &recordingSender{}
	tctx, _ := New(sender, inbound())

	responses, err := tctx.SendActivities(context.Background(),
		activity.NewMessage("one"),
		activity.NewMessage("two"),
		activity.NewMessage("three"),
	)
	if err != nil {
		t.Fatalf("SendActivities error: %v", err)
	}
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want one per activity", len(responses))
	}

	batch := sender.batches[0]
	for i, want := range []string{"one", "two", "three"} {
		if batch[i].Text != want {
			t.Fatalf("batch[%d].Text = %q, want %q", i, batch[i].Text, want)
		}
	}
}

func TestSendHandlersChainInRegistrationOrder(t *testing.T) {
	sender := &recordingSender{}
	tctx, _ := New(sender, inbound())

	var order []string
	tctx.OnSendActivities(func(ctx context.Context, tctx *Context, activities []*activity.Activity, next func() ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
		order = append(order, "first-before")
		responses, err := next()
		order = append(order, "first-after")
		return responses, err
	})
	tctx.OnSendActivities(func(ctx context.Context, tctx *Context, activities []*activity.Activity, next func() ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
		order = append(order, "second-before")
		responses, err := next()
		order = append(order, "second-after")
		return responses, err
	})

	if _, err := tctx.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText error: %v", err)
	}

	want := []string{"first-before", "second-before", "second-after", "first-after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSendHandlerCanShortCircuit(t *testing.T) {
	sender := &recordingSender{}
	tctx, _ := New(sender, inbound())

	tctx.OnSendActivities(func(ctx context.Context, tctx *Context, activities []*activity.Activity, next func() ([]activity.ResourceResponse, error)) ([]activity.ResourceResponse, error) {
		return []activity.ResourceResponse{{ID: "suppressed"}}, nil
	})

	responses, err := tctx.SendText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendText error: %v", err)
	}
	if responses.ID != "suppressed" {
		t.Fatalf("response id = %q, want handler result", responses.ID)
	}
	if len(sender.batches) != 0 {
		t.Fatal("expected no delivery when handler short-circuits")
	}
	if tctx.Responded() {
		t.Fatal("responded must stay false when nothing was delivered")
	}
}

func TestTraceDoesNotMarkResponded(t *testing.T) {
	sender := &recordingSender{}
	tctx, _ := New(sender, inbound())

	trace := activity.CreateTrace(tctx.Activity(), "diag", nil, "", "diagnostic")
	if _, err := tctx.SendActivity(context.Background(), trace); err != nil {
		t.Fatalf("SendActivity error: %v", err)
	}

	if tctx.Responded() {
		t.Fatal("trace send must not mark the turn responded")
	}
}

func TestSendActivitiesValidation(t *testing.T) {
	sender := &recordingSender{}
	tctx, _ := New(sender, inbound())

	if _, err := tctx.SendActivities(context.Background()); err == nil {
		t.Fatal("expected error for empty batch")
	}
	if _, err := tctx.SendActivities(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil activity")
	}
}

func TestSendErrorPropagates(t *testing.T) {
	wantErr := errors.New("wire down")
	tctx, _ := New(&recordingSender{fail: wantErr}, inbound())

	if _, err := tctx.SendText(context.Background(), "hello"); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped sender error", err)
	}
	if tctx.Responded() {
		t.Fatal("responded must stay false on send failure")
	}
}

func TestTurnValues(t *testing.T) {
	tctx, _ := New(&recordingSender{}, inbound())

	if _, ok := tctx.Value("missing"); ok {
		t.Fatal("expected miss for unset key")
	}

	tctx.SetValue("cache", 42)
	v, ok := tctx.Value("cache")
	if !ok || v != 42 {
		t.Fatalf("value = %v, %v; want 42, true", v, ok)
	}
}
