package activity

import "testing"

func inboundActivity() *Activity {
	return &Activity{
		Type:       TypeMessage,
		ID:         "act-1",
		Text:       "hello",
		ChannelID:  "msteams",
		ServiceURL: "https://smba.example.com/teams",
		From:       ChannelAccount{ID: "user-1", Name: "User"},
		Recipient:  ChannelAccount{ID: "bot-1", Name: "Bot", Role: RoleBot},
		Conversation: &ConversationAccount{
			ID: "conv-1",
		},
		Locale: "en-US",
	}
}

func TestGetConversationReference(t *testing.T) {
	ref := GetConversationReference(inboundActivity())

	if ref.ActivityID != "act-1" {
		t.Fatalf("activity id = %q, want %q", ref.ActivityID, "act-1")
	}
	if ref.User.ID != "user-1" {
		t.Fatalf("user = %q, want the sender", ref.User.ID)
	}
	if ref.Bot.ID != "bot-1" {
		t.Fatalf("bot = %q, want the recipient", ref.Bot.ID)
	}
	if ref.Conversation == nil || ref.Conversation.ID != "conv-1" {
		t.Fatal("expected conversation carried into reference")
	}
	if ref.ServiceURL != "https://smba.example.com/teams" {
		t.Fatalf("service url = %q", ref.ServiceURL)
	}
}

func TestApplyConversationReferenceOutbound(t *testing.T) {
	ref := GetConversationReference(inboundActivity())
	reply := ApplyConversationReference(NewMessage("hi"), ref, false)

	if reply.From.ID != "bot-1" {
		t.Fatalf("from = %q, want the bot", reply.From.ID)
	}
	if reply.Recipient.ID != "user-1" {
		t.Fatalf("recipient = %q, want the user", reply.Recipient.ID)
	}
	if reply.ReplyToID != "act-1" {
		t.Fatalf("replyToId = %q, want the inbound activity id", reply.ReplyToID)
	}
	if reply.ChannelID != "msteams" || reply.Conversation.ID != "conv-1" {
		t.Fatal("expected channel and conversation from reference")
	}
	if reply.Locale != "en-US" {
		t.Fatalf("locale = %q, want inherited locale", reply.Locale)
	}
}

func TestApplyConversationReferenceIncoming(t *testing.T) {
	ref := GetConversationReference(inboundActivity())
	act := ApplyConversationReference(&Activity{Type: TypeEvent}, ref, true)

	if act.From.ID != "user-1" {
		t.Fatalf("from = %q, want the user", act.From.ID)
	}
	if act.Recipient.ID != "bot-1" {
		t.Fatalf("recipient = %q, want the bot", act.Recipient.ID)
	}
	if act.ID != "act-1" {
		t.Fatalf("id = %q, want the reference activity id", act.ID)
	}
	if act.ReplyToID != "" {
		t.Fatalf("replyToId = %q, want empty on incoming shape", act.ReplyToID)
	}
}

func TestGetContinuationActivity(t *testing.T) {
	ref := GetConversationReference(inboundActivity())
	act := GetContinuationActivity(ref)

	if act.Type != TypeEvent {
		t.Fatalf("type = %q, want event", act.Type)
	}
	if act.Name != EventContinueConversation {
		t.Fatalf("name = %q, want %q", act.Name, EventContinueConversation)
	}
	if act.Conversation.ID != "conv-1" || act.ServiceURL == "" {
		t.Fatal("expected conversation address on continuation activity")
	}
	if act.From.ID != "user-1" || act.Recipient.ID != "bot-1" {
		t.Fatal("expected incoming shape on continuation activity")
	}
}

func TestCreateTraceAddressesConversation(t *testing.T) {
	trace := CreateTrace(inboundActivity(), "BotState", map[string]any{"k": "v"}, "https://www.botframework.com/schemas/botState", "Bot State")

	if trace.Type != TypeTrace {
		t.Fatalf("type = %q, want trace", trace.Type)
	}
	if trace.Conversation == nil || trace.Conversation.ID != "conv-1" {
		t.Fatal("expected trace addressed to the inbound conversation")
	}
	if trace.ReplyToID != "act-1" {
		t.Fatalf("replyToId = %q, want inbound id", trace.ReplyToID)
	}
}

func TestNewReply(t *testing.T) {
	reply := NewReply(inboundActivity(), "echo")

	if reply.Text != "echo" || reply.Type != TypeMessage {
		t.Fatalf("unexpected reply shape: %+v", reply)
	}
	if reply.Recipient.ID != "user-1" || reply.ReplyToID != "act-1" {
		t.Fatal("expected reply addressed back to the sender")
	}
}
