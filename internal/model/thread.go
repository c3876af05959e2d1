// Package model defines data structures for the persona chat backend.
package model

import (
	"time"
)

// ThreadStatus is the lifecycle state of a thread.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadArchived ThreadStatus = "archived"
)

// Thread represents a conversation between one user and the assistant persona.
// UserID is the single owner; whether that owner is anonymous is a property of the user.
type Thread struct {
	ID        string       `gorm:"primaryKey;size:26" json:"id"`
	UserID    string       `gorm:"size:36;index;not null" json:"user_id"`
	Title     string       `gorm:"size:256" json:"title"`
	Summary   string       `gorm:"type:text" json:"summary,omitempty"`
	Status    ThreadStatus `gorm:"size:16;not null;default:active" json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (Thread) TableName() string { return "threads" }

// UpdateThreadRequest is the request to rename or archive a thread.
type UpdateThreadRequest struct {
	Title  *string       `json:"title,omitempty"`
	Status *ThreadStatus `json:"status,omitempty"`
}

// PaginationOpts selects one page of a cursor-paginated list.
type PaginationOpts struct {
	NumItems int    `json:"numItems"`
	Cursor   string `json:"cursor,omitempty"`
}

// Page is one page of a cursor-paginated list.
type Page[T any] struct {
	Page           []T    `json:"page"`
	ContinueCursor string `json:"continueCursor"`
	IsDone         bool   `json:"isDone"`
}

// CreateThreadRequest is the body of the create thread actions.
type CreateThreadRequest struct {
	Prompt string `json:"prompt"`
}

// CreateThreadResponse is returned by the create thread actions.
type CreateThreadResponse struct {
	ThreadID string `json:"threadId"`
	UserID   string `json:"userId,omitempty"`
	Text     string `json:"text"`
}

// ContinueThreadRequest is the body of the continue thread actions.
type ContinueThreadRequest struct {
	Prompt          string `json:"prompt,omitempty"`
	PromptMessageID string `json:"promptMessageId,omitempty"`
}

// ContinueThreadResponse is returned by the continue thread actions.
type ContinueThreadResponse struct {
	Text string `json:"text"`
}

// MigrationResult reports how many threads a migration touched.
type MigrationResult struct {
	TotalThreadsMigrated  int `json:"totalThreadsMigrated"`
	TotalThreadsProcessed int `json:"totalThreadsProcessed"`
}

// MigrateRequest is the body of the migrate action.
type MigrateRequest struct {
	AnonymousUserID string `json:"anonymousUserId"`
}
