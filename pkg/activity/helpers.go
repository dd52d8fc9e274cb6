package activity

import "time"

// NewMessage builds a plain message activity.
func NewMessage(text string) *Activity {
	return &Activity{Type: TypeMessage, Text: text}
}

// NewReply builds a message activity addressed back to the sender of inbound.
func NewReply(inbound *Activity, text string) *Activity {
	reply := &Activity{Type: TypeMessage, Text: text}
	return ApplyConversationReference(reply, GetConversationReference(inbound), false)
}

// GetConversationReference extracts the resumable address of an activity's
// conversation.
func GetConversationReference(act *Activity) *ConversationReference {
	if act == nil {
		return nil
	}

	return &ConversationReference{
		ActivityID:   act.ID,
		User:         act.From,
		Bot:          act.Recipient,
		Conversation: act.Conversation,
		ChannelID:    act.ChannelID,
		ServiceURL:   act.ServiceURL,
		Locale:       act.Locale,
	}
}

// ApplyConversationReference addresses an activity using a stored reference.
//
// With isIncoming true the activity is shaped as if it arrived from the user;
// otherwise it is shaped as an outbound reply from the bot, and ReplyToID is
// set to the reference's activity id.
func ApplyConversationReference(act *Activity, ref *ConversationReference, isIncoming bool) *Activity {
	if act == nil || ref == nil {
		return act
	}

	act.ChannelID = ref.ChannelID
	act.ServiceURL = ref.ServiceURL
	act.Conversation = ref.Conversation
	if act.Locale == "" {
		act.Locale = ref.Locale
	}

	if isIncoming {
		act.From = ref.User
		act.Recipient = ref.Bot
		if ref.ActivityID != "" {
			act.ID = ref.ActivityID
		}
		return act
	}

	act.From = ref.Bot
	act.Recipient = ref.User
	if ref.ActivityID != "" {
		act.ReplyToID = ref.ActivityID
	}

	return act
}

// GetContinuationActivity builds the synthetic event activity that seeds a
// proactive turn for the referenced conversation.
func GetContinuationActivity(ref *ConversationReference) *Activity {
	if ref == nil {
		return nil
	}

	now := time.Now().UTC()
	act := &Activity{
		Type:      TypeEvent,
		Name:      EventContinueConversation,
		Timestamp: &now,
	}

	return ApplyConversationReference(act, ref, true)
}

// CreateTrace builds a trace activity tied to the inbound activity's
// conversation. Traces are channel-local diagnostics, delivered only to the
// emulator channel.
func CreateTrace(inbound *Activity, name string, value any, valueType string, label string) *Activity {
	now := time.Now().UTC()
	trace := &Activity{
		Type:      TypeTrace,
		Name:      name,
		Value:     value,
		ValueType: valueType,
		Label:     label,
		Timestamp: &now,
	}

	if inbound != nil {
		ApplyConversationReference(trace, GetConversationReference(inbound), false)
	}

	return trace
}
