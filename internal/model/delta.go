package model

import (
	"time"
)

// StreamDelta is an incremental chunk of an in-progress assistant message.
// Start and End are byte offsets into the final message content.
type StreamDelta struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"size:26;not null;uniqueIndex:idx_deltas_message_seq,priority:1" json:"streamId"`
	ThreadID  string    `gorm:"size:26;not null;index" json:"threadId"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_deltas_message_seq,priority:2" json:"seq"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Text      string    `gorm:"type:text" json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName implements the gorm tabler interface.
func (StreamDelta) TableName() string { return "stream_deltas" }

// StreamKind selects what a messages query returns about live streams.
type StreamKind string

const (
	StreamKindNone   StreamKind = ""
	StreamKindList   StreamKind = "list"
	StreamKindDeltas StreamKind = "deltas"
)

// StreamCursor is a client-known position in one message stream.
type StreamCursor struct {
	StreamID string `json:"streamId"`
	Cursor   int    `json:"cursor"`
}

// StreamArgs describes which stream data a client wants with a messages page.
type StreamArgs struct {
	Kind    StreamKind     `json:"kind"`
	Cursors []StreamCursor `json:"cursors,omitempty"`
}

// StreamInfo describes a message that is still streaming.
type StreamInfo struct {
	StreamID string `json:"streamId"`
	Order    int    `json:"order"`
}

// SyncStreamsResult is the stream part of a messages query.
type SyncStreamsResult struct {
	Kind     StreamKind    `json:"kind"`
	Messages []StreamInfo  `json:"messages,omitempty"`
	Deltas   []StreamDelta `json:"deltas,omitempty"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Page[Message]
	Streams *SyncStreamsResult `json:"streams,omitempty"`
}

// CacheEntry is a stored response keyed by the hash of its request. Entries never expire.
type CacheEntry struct {
	Key       string    `gorm:"column:cache_key;primaryKey;size:64"`
	Value     string    `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// TableName implements the gorm tabler interface.
func (CacheEntry) TableName() string { return "llm_cache" }
