package model

import (
	"strings"
	"time"
)

// DefaultTitle is used when a document is saved with an empty or
// whitespace-only title.
const DefaultTitle = "Untitled Document"

// Document is the unit of persistence. ID is empty until the first
// successful save; the storage backend assigns it.
type Document struct {
	ID        string    `json:"id" firestore:"-"`
	Title     string    `json:"title" firestore:"title"`
	Content   string    `json:"content" firestore:"content"`
	OwnerID   string    `json:"owner_id" firestore:"ownerId"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Normalized returns a copy with the title trimmed (defaulting when blank).
// Content passes through; an empty body is a valid document.
func (d Document) Normalized() Document {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		d.Title = DefaultTitle
	}
	return d
}

type SaveDocRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type SaveDocResponse struct {
	DocID string `json:"document_id"`
}
