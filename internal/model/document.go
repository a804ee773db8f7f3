package model

import (
	"encoding/json"
	"time"
)

// Document status lifecycle: pending -> processing -> indexed | failed.
// Only the processing worker advances status past pending.
const (
	DocumentStatusPending    = "pending"
	DocumentStatusProcessing = "processing"
	DocumentStatusIndexed    = "indexed"
	DocumentStatusFailed     = "failed"
)

const (
	DocumentSourceUpload = "upload"
	DocumentSourceURL    = "url"
)

type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Name       string    `gorm:"size:256;not null" json:"name"`
	Source     string    `gorm:"size:16;not null" json:"source"`
	SourceURL  string    `gorm:"size:2048" json:"source_url,omitempty"`
	Status     string    `gorm:"size:16;not null;index" json:"status"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	Industry   string    `gorm:"size:32" json:"industry,omitempty"`
	PageCount  int       `json:"page_count"`
	WordCount  int       `json:"word_count"`
	ChunkCount int       `json:"chunk_count"`
	SizeBytes  int64     `json:"size_bytes"`
	Pages      string    `gorm:"type:longtext" json:"-"` // JSON array of DocumentPage
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DocumentPage is the extracted text of one page, kept as the
// re-processing source of truth after ingestion.
type DocumentPage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// PageList returns the parsed extracted pages; nil on parse error.
func (d *Document) PageList() []DocumentPage {
	if d.Pages == "" {
		return nil
	}
	var pages []DocumentPage
	_ = json.Unmarshal([]byte(d.Pages), &pages)
	return pages
}

// SetPages stores the extracted pages as JSON.
func (d *Document) SetPages(pages []DocumentPage) {
	if len(pages) == 0 {
		d.Pages = "[]"
		return
	}
	b, _ := json.Marshal(pages)
	d.Pages = string(b)
}
