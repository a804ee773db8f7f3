package model

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  uint      `gorm:"not null;index" json:"session_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Role       string    `gorm:"size:16;not null;index" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Provider   string    `gorm:"size:32" json:"provider,omitempty"`
	Model      string    `gorm:"size:128" json:"model,omitempty"`
	Mode       string    `gorm:"size:32" json:"mode,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Sources    string    `gorm:"type:text" json:"-"` // JSON array of MessageSource
	CreatedAt  time.Time `json:"created_at"`
}

// MessageSource records one retrieved chunk an assistant answer was based on.
type MessageSource struct {
	DocumentID   uint    `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page"`
	ChunkContent string  `json:"chunk_content"`
	Relevance    float64 `json:"relevance"`
}

// SourceList returns the parsed sources; nil on parse error.
func (m *Message) SourceList() []MessageSource {
	if m.Sources == "" {
		return nil
	}
	var s []MessageSource
	_ = json.Unmarshal([]byte(m.Sources), &s)
	return s
}

// SetSources stores the sources as JSON.
func (m *Message) SetSources(sources []MessageSource) {
	if len(sources) == 0 {
		m.Sources = "[]"
		return
	}
	b, _ := json.Marshal(sources)
	m.Sources = string(b)
}
