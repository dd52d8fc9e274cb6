// Package activity defines the wire-level message model of the Bot Framework
// protocol: activities, conversation references, and the response shapes
// exchanged with the connector service.
package activity

import "time"

// Activity types.
const (
	TypeMessage            = "message"
	TypeMessageUpdate      = "messageUpdate"
	TypeMessageDelete      = "messageDelete"
	TypeConversationUpdate = "conversationUpdate"
	TypeTyping             = "typing"
	TypeEndOfConversation  = "endOfConversation"
	TypeEvent              = "event"
	TypeInvoke             = "invoke"
	TypeInvokeResponse     = "invokeResponse"
	TypeTrace              = "trace"
	TypeDelay              = "delay"
)

// Delivery modes.
const (
	DeliveryModeNormal        = "normal"
	DeliveryModeExpectReplies = "expectReplies"
)

// ChannelEmulator is the channel id of the Bot Framework Emulator, the only
// channel that receives trace activities.
const ChannelEmulator = "emulator"

// EventContinueConversation names the synthetic event activity used to resume
// a conversation proactively.
const EventContinueConversation = "ContinueConversation"

// Account roles.
const (
	RoleBot   = "bot"
	RoleUser  = "user"
	RoleSkill = "skill"
)

// ChannelAccount identifies a bot or user on a channel.
type ChannelAccount struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// Activity is one message/event unit of the conversational protocol.
type Activity struct {
	Type           string               `json:"type"`
	ID             string               `json:"id,omitempty"`
	Timestamp      *time.Time           `json:"timestamp,omitempty"`
	LocalTimestamp *time.Time           `json:"localTimestamp,omitempty"`
	ServiceURL     string               `json:"serviceUrl,omitempty"`
	ChannelID      string               `json:"channelId,omitempty"`
	From           ChannelAccount       `json:"from,omitempty"`
	Conversation   *ConversationAccount `json:"conversation,omitempty"`
	Recipient      ChannelAccount       `json:"recipient,omitempty"`
	ReplyToID      string               `json:"replyToId,omitempty"`
	DeliveryMode   string               `json:"deliveryMode,omitempty"`
	CallerID       string               `json:"callerId,omitempty"`
	Text           string               `json:"text,omitempty"`
	TextFormat     string               `json:"textFormat,omitempty"`
	Locale         string               `json:"locale,omitempty"`
	Name           string               `json:"name,omitempty"`
	Value          any                  `json:"value,omitempty"`
	ValueType      string               `json:"valueType,omitempty"`
	Label          string               `json:"label,omitempty"`
	Code           string               `json:"code,omitempty"`
	ChannelData    any                  `json:"channelData,omitempty"`
	MembersAdded   []ChannelAccount     `json:"membersAdded,omitempty"`
	MembersRemoved []ChannelAccount     `json:"membersRemoved,omitempty"`
}

// ConversationReference is the persistent address of a conversation, enough
// to resume it proactively later.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         ChannelAccount       `json:"user,omitempty"`
	Bot          ChannelAccount       `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	Locale       string               `json:"locale,omitempty"`
}

// ResourceResponse is the connector's acknowledgment of a delivered activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// InvokeResponse is the synchronous payload returned for an invoke turn.
type InvokeResponse struct {
	Status int `json:"status"`
	Body   any `json:"body,omitempty"`
}

// ExpectedReplies carries the buffered activities of an expect-replies turn.
type ExpectedReplies struct {
	Activities []*Activity `json:"activities"`
}
