package state

import (
	"context"
	"testing"

	"botframe/pkg/activity"
	"botframe/pkg/turn"
)

type nullSender struct{}

func (nullSender) SendActivities(_ context.Context, _ *turn.Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	return make([]activity.ResourceResponse, len(activities)), nil
}

func (nullSender) UpdateActivity(context.Context, *turn.Context, *activity.Activity) (activity.ResourceResponse, error) {
	return activity.ResourceResponse{}, nil
}

func (nullSender) DeleteActivity(context.Context, *turn.Context, *activity.ConversationReference) error {
	return nil
}

func newTestTurn(t *testing.T, conversationID string) *turn.Context {
	t.Helper()
	tctx, err := turn.New(nullSender{}, &activity.Activity{
		Type:         activity.TypeMessage,
		ChannelID:    "test",
		Conversation: &activity.ConversationAccount{ID: conversationID},
	})
	if err != nil {
		t.Fatalf("turn.New error: %v", err)
	}
	return tctx
}

type profile struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPropertyRoundTripAcrossTurns(t *testing.T) {
	storage := NewMemoryStorage()
	conversations, err := NewConversationState(storage)
	if err != nil {
		t.Fatalf("NewConversationState error: %v", err)
	}
	prop, err := NewProperty[profile](conversations, "profile")
	if err != nil {
		t.Fatalf("NewProperty error: %v", err)
	}

	ctx := context.Background()

	// Turn 1: create and persist.
	turn1 := newTestTurn(t, "conv-1")
	value, err := prop.Get(ctx, turn1, func() *profile { return &profile{Name: "Ada"} })
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	value.Count = 7
	if err := prop.Set(ctx, turn1, value); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := conversations.Save(ctx, turn1, false); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// Turn 2: fresh turn context, same conversation.
	turn2 := newTestTurn(t, "conv-1")
	loaded, err := prop.Get(ctx, turn2, nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if loaded == nil || loaded.Name != "Ada" || loaded.Count != 7 {
		t.Fatalf("loaded = %+v, want persisted value", loaded)
	}
}

func TestPropertiesAreConversationScoped(t *testing.T) {
	conversations, _ := NewConversationState(NewMemoryStorage())
	prop, _ := NewProperty[profile](conversations, "profile")
	ctx := context.Background()

	turnA := newTestTurn(t, "conv-a")
	if err := prop.Set(ctx, turnA, &profile{Name: "A"}); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := conversations.Save(ctx, turnA, false); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	turnB := newTestTurn(t, "conv-b")
	loaded, err := prop.Get(ctx, turnB, nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("loaded = %+v, want nil for a different conversation", loaded)
	}
}

func TestGetWithNilFactoryReturnsNil(t *testing.T) {
	conversations, _ := NewConversationState(NewMemoryStorage())
	prop, _ := NewProperty[profile](conversations, "profile")

	loaded, err := prop.Get(context.Background(), newTestTurn(t, "conv-1"), nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("loaded = %+v, want nil when absent and no factory", loaded)
	}
}

func TestSaveSkipsCleanState(t *testing.T) {
	storage := NewMemoryStorage()
	conversations, _ := NewConversationState(storage)
	prop, _ := NewProperty[profile](conversations, "profile")
	ctx := context.Background()

	tctx := newTestTurn(t, "conv-1")
	if _, err := prop.Get(ctx, tctx, nil); err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if err := conversations.Save(ctx, tctx, false); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	entries, err := storage.Read(ctx, []string{"test/conversations/conv-1"})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatal("clean state must not be written")
	}
}

func TestDeleteRemovesProperty(t *testing.T) {
	conversations, _ := NewConversationState(NewMemoryStorage())
	prop, _ := NewProperty[profile](conversations, "profile")
	ctx := context.Background()

	turn1 := newTestTurn(t, "conv-1")
	if err := prop.Set(ctx, turn1, &profile{Name: "gone"}); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := prop.Delete(ctx, turn1); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := conversations.Save(ctx, turn1, false); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	turn2 := newTestTurn(t, "conv-1")
	loaded, err := prop.Get(ctx, turn2, nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("loaded = %+v, want nil after delete", loaded)
	}
}

func TestClearDropsAllProperties(t *testing.T) {
	conversations, _ := NewConversationState(NewMemoryStorage())
	prop, _ := NewProperty[profile](conversations, "profile")
	ctx := context.Background()

	turn1 := newTestTurn(t, "conv-1")
	if err := prop.Set(ctx, turn1, &profile{Name: "before"}); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := conversations.Save(ctx, turn1, false); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	turn2 := newTestTurn(t, "conv-1")
	conversations.Clear(turn2)
	if err := conversations.Save(ctx, turn2, true); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	turn3 := newTestTurn(t, "conv-1")
	loaded, err := prop.Get(ctx, turn3, nil)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if loaded != nil {
		t.Fatalf("loaded = %+v, want nil after clear", loaded)
	}
}

func TestStorageKeyValidation(t *testing.T) {
	conversations, _ := NewConversationState(NewMemoryStorage())

	tctx, _ := turn.New(nullSender{}, &activity.Activity{Type: activity.TypeMessage, ChannelID: "test"})
	if _, err := conversations.StorageKey(tctx); err == nil {
		t.Fatal("expected error for activity without conversation")
	}

	tctx, _ = turn.New(nullSender{}, &activity.Activity{
		Type:         activity.TypeMessage,
		Conversation: &activity.ConversationAccount{ID: "conv-1"},
	})
	if _, err := conversations.StorageKey(tctx); err == nil {
		t.Fatal("expected error for activity without channel id")
	}
}

func TestMemoryStorageETagEnforcement(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	if err := storage.Write(ctx, map[string]Entry{"k": {Value: []byte(`"v1"`), ETag: ETagAny}}); err != nil {
		t.Fatalf("initial write: %v", err)
	}

	entries, err := storage.Read(ctx, []string{"k"})
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	current := entries["k"].ETag
	if current == "" {
		t.Fatal("expected etag on stored entry")
	}

	// Conditional write with the current etag succeeds.
	if err := storage.Write(ctx, map[string]Entry{"k": {Value: []byte(`"v2"`), ETag: current}}); err != nil {
		t.Fatalf("conditional write: %v", err)
	}

	// Replaying the stale etag loses the race.
	err = storage.Write(ctx, map[string]Entry{"k": {Value: []byte(`"v3"`), ETag: current}})
	if err == nil {
		t.Fatal("expected etag mismatch for stale write")
	}
}
