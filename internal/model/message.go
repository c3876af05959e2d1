package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MessageStatus tracks whether an assistant message is still being generated.
type MessageStatus string

const (
	MessageStreaming MessageStatus = "streaming"
	MessageSuccess   MessageStatus = "success"
	MessageFailed    MessageStatus = "failed"
)

// PartType is the kind of a structured message part.
type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartToolInvocation PartType = "tool-invocation"
	PartStepStart      PartType = "step-start"
)

// Part is one structured piece of a message.
type Part struct {
	Type       PartType `json:"type"`
	Text       string   `json:"text,omitempty"`
	ToolCallID string   `json:"toolCallId,omitempty"`
	ToolName   string   `json:"toolName,omitempty"`
	Args       string   `json:"args,omitempty"`
	Result     string   `json:"result,omitempty"`
}

// Message represents one turn in a thread.
type Message struct {
	// Identity
	ID       string `gorm:"primaryKey;size:26" json:"id"`
	ThreadID string `gorm:"size:26;not null;uniqueIndex:idx_messages_thread_order,priority:1" json:"thread_id"`
	UserID   string `gorm:"size:36;index" json:"user_id,omitempty"`
	Order    int    `gorm:"column:msg_order;not null;uniqueIndex:idx_messages_thread_order,priority:2" json:"order"`

	// Content
	Role    Role   `gorm:"size:16;not null" json:"role"`
	Content string `gorm:"type:text" json:"content"`
	Parts   []Part `gorm:"serializer:json;type:text" json:"parts,omitempty"`

	// Streaming state
	Status MessageStatus `gorm:"size:16;not null;index" json:"status"`
	Error  *string       `gorm:"type:text" json:"error,omitempty"`

	// LLM metadata (nil for user messages)
	Model      *string `gorm:"size:64" json:"model,omitempty"`
	TokensIn   *int    `json:"tokens_in,omitempty"`
	TokensOut  *int    `json:"tokens_out,omitempty"`
	LatencyMs  *int64  `json:"latency_ms,omitempty"`
	StopReason *string `gorm:"size:32" json:"stop_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (Message) TableName() string { return "messages" }

// MessageCompletion carries the final state written when a streaming message ends.
type MessageCompletion struct {
	Status     MessageStatus
	Content    string
	Parts      []Part
	Error      *string
	Model      string
	TokensIn   int
	TokensOut  int
	LatencyMs  int64
	StopReason string
}

// SaveMessageRequest is the body of the save message action.
type SaveMessageRequest struct {
	Prompt string `json:"prompt"`
}

// SaveMessageResponse is returned by the save message action.
type SaveMessageResponse struct {
	MessageID string `json:"messageId"`
}

// ErrorEvent represents an error pushed over a live stream.
type ErrorEvent struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
