package model

import (
	"time"
)

// User is an identity record. Authenticated users carry the identity provider's id in
// ExternalID; anonymous users exist only as an internal id held by the client.
type User struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	ExternalID    *string   `gorm:"size:128;uniqueIndex" json:"external_id,omitempty"`
	IsAnonymous   bool      `gorm:"not null;index" json:"is_anonymous"`
	Name          string    `gorm:"size:256" json:"name,omitempty"`
	Email         string    `gorm:"size:320;index" json:"email,omitempty"`
	AvatarURL     string    `gorm:"size:1024" json:"avatar_url,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName implements the gorm tabler interface.
func (User) TableName() string { return "users" }

// ExternalUser is a user profile as reported by the identity provider.
type ExternalUser struct {
	ExternalID    string
	Email         string
	FirstName     string
	LastName      string
	AvatarURL     string
	EmailVerified bool
}

// DisplayName joins first and last name.
func (u ExternalUser) DisplayName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// RAGEntry is one embedded chunk of the retrieval corpus.
type RAGEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Namespace string    `gorm:"size:64;not null;index:idx_rag_ns_key,priority:1"`
	Key       string    `gorm:"column:doc_key;size:256;not null;index:idx_rag_ns_key,priority:2"`
	Title     string    `gorm:"size:256"`
	Chunk     int       `gorm:"not null"`
	Text      string    `gorm:"type:text;not null"`
	Embedding []float32 `gorm:"serializer:json;type:text"`
	CreatedAt time.Time
}

// TableName implements the gorm tabler interface.
func (RAGEntry) TableName() string { return "rag_entries" }
