package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"botframe/pkg/turn"
)

const conversationCacheKey = "state:conversation"

// ConversationState manages one persisted state blob per conversation,
// cached on the turn context between load and save.
type ConversationState struct {
	storage Storage
}

// NewConversationState builds conversation-scoped state over a storage
// backend.
func NewConversationState(storage Storage) (*ConversationState, error) {
	if storage == nil {
		return nil, errors.New("storage is required")
	}

	return &ConversationState{storage: storage}, nil
}

type cachedState struct {
	values map[string]json.RawMessage
	etag   string
	dirty  bool
}

// StorageKey derives the conversation's storage key from the turn's inbound
// activity.
func (s *ConversationState) StorageKey(tctx *turn.Context) (string, error) {
	act := tctx.Activity()
	if act.ChannelID == "" {
		return "", errors.New("activity has no channel id")
	}
	if act.Conversation == nil || act.Conversation.ID == "" {
		return "", errors.New("activity has no conversation id")
	}

	return act.ChannelID + "/conversations/" + act.Conversation.ID, nil
}

// Load reads the conversation's blob into the turn cache. Subsequent loads
// in the same turn are no-ops unless force is set.
func (s *ConversationState) Load(ctx context.Context, tctx *turn.Context, force bool) error {
	if _, ok := tctx.Value(conversationCacheKey); ok && !force {
		return nil
	}

	key, err := s.StorageKey(tctx)
	if err != nil {
		return err
	}

	entries, err := s.storage.Read(ctx, []string{key})
	if err != nil {
		return fmt.Errorf("load conversation state: %w", err)
	}

	cache := &cachedState{values: make(map[string]json.RawMessage)}
	if entry, ok := entries[key]; ok {
		if len(entry.Value) > 0 {
			if err := json.Unmarshal(entry.Value, &cache.values); err != nil {
				return fmt.Errorf("decode conversation state: %w", err)
			}
		}
		cache.etag = entry.ETag
	}

	tctx.SetValue(conversationCacheKey, cache)
	return nil
}

// Save writes the turn's cached blob back to storage when it changed, or
// always when force is set. The write is at-most-once per turn; a storage
// failure fails the turn.
func (s *ConversationState) Save(ctx context.Context, tctx *turn.Context, force bool) error {
	cache, ok := s.cache(tctx)
	if !ok || (!cache.dirty && !force) {
		return nil
	}

	key, err := s.StorageKey(tctx)
	if err != nil {
		return err
	}

	blob, err := json.Marshal(cache.values)
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}

	etag := cache.etag
	if force || etag == "" {
		etag = ETagAny
	}

	if err := s.storage.Write(ctx, map[string]Entry{key: {Value: blob, ETag: etag}}); err != nil {
		return fmt.Errorf("save conversation state: %w", err)
	}

	cache.dirty = false
	return nil
}

// Clear drops all cached properties for the conversation. The deletion is
// persisted on the next Save.
func (s *ConversationState) Clear(tctx *turn.Context) {
	tctx.SetValue(conversationCacheKey, &cachedState{values: make(map[string]json.RawMessage), dirty: true})
}

func (s *ConversationState) cache(tctx *turn.Context) (*cachedState, bool) {
	value, ok := tctx.Value(conversationCacheKey)
	if !ok {
		return nil, false
	}
	cache, ok := value.(*cachedState)
	return cache, ok
}

// Property is a named, typed slot inside a conversation's state blob.
// Values round-trip through JSON exactly across save/load cycles.
type Property[T any] struct {
	state *ConversationState
	name  string
}

// NewProperty creates an accessor for one named property.
func NewProperty[T any](state *ConversationState, name string) (*Property[T], error) {
	if state == nil {
		return nil, errors.New("conversation state is required")
	}
	if name == "" {
		return nil, errors.New("property name is required")
	}

	return &Property[T]{state: state, name: name}, nil
}

// Get returns the property value, constructing it with factory when absent.
// A nil factory yields a nil result for absent values.
func (p *Property[T]) Get(ctx context.Context, tctx *turn.Context, factory func() *T) (*T, error) {
	if err := p.state.Load(ctx, tctx, false); err != nil {
		return nil, err
	}

	cache, _ := p.state.cache(tctx)
	raw, ok := cache.values[p.name]
	if !ok {
		if factory == nil {
			return nil, nil
		}
		value := factory()
		if err := p.Set(ctx, tctx, value); err != nil {
			return nil, err
		}
		return value, nil
	}

	value := new(T)
	if err := json.Unmarshal(raw, value); err != nil {
		return nil, fmt.Errorf("decode property %q: %w", p.name, err)
	}

	return value, nil
}

// Set stores the property value in the turn cache.
func (p *Property[T]) Set(ctx context.Context, tctx *turn.Context, value *T) error {
	if err := p.state.Load(ctx, tctx, false); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode property %q: %w", p.name, err)
	}

	cache, _ := p.state.cache(tctx)
	cache.values[p.name] = raw
	cache.dirty = true
	return nil
}

// Delete removes the property from the turn cache.
func (p *Property[T]) Delete(ctx context.Context, tctx *turn.Context) error {
	if err := p.state.Load(ctx, tctx, false); err != nil {
		return err
	}

	cache, _ := p.state.cache(tctx)
	if _, ok := cache.values[p.name]; ok {
		delete(cache.values, p.name)
		cache.dirty = true
	}
	return nil
}
