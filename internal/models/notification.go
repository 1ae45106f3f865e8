package models

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID          uuid.UUID   `json:"id"`
	ContentType ContentType `json:"content_type"`
	ContentID   *uuid.UUID  `json:"content_id"`
	Title       string      `json:"title"`
	Excerpt     string      `json:"excerpt,omitempty"`
	// Body and Audience are only used by custom broadcasts.
	Body      string     `json:"body,omitempty"`
	Audience  string     `json:"audience,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at"`

	ClaimedBy *uuid.UUID `json:"-"`
	ClaimedAt *time.Time `json:"-"`
}

func (n *Notification) IsPending() bool { return n.SentAt == nil }

type CreateNotificationRequest struct {
	ContentType string    `json:"content_type" binding:"required"`
	ContentID   uuid.UUID `json:"content_id" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	Excerpt     string    `json:"excerpt"`
}

type CustomBroadcastRequest struct {
	Title      string `json:"title" binding:"required"`
	Content    string `json:"content" binding:"required"`
	Recipients string `json:"recipients"`
}

func NewNotification(contentType ContentType, contentID uuid.UUID, title, excerpt string) *Notification {
	return &Notification{
		ID:          uuid.New(),
		ContentType: contentType,
		ContentID:   &contentID,
		Title:       title,
		Excerpt:     excerpt,
		CreatedAt:   time.Now().UTC(),
	}
}

const customExcerptLimit = 200

// NewCustomNotification builds a broadcast not backed by any content item.
func NewCustomNotification(title, body, audience string) *Notification {
	excerpt := body
	if r := []rune(body); len(r) > customExcerptLimit {
		excerpt = string(r[:customExcerptLimit]) + "..."
	}
	return &Notification{
		ID:          uuid.New(),
		ContentType: ContentCustom,
		Title:       title,
		Excerpt:     excerpt,
		Body:        body,
		Audience:    audience,
		CreatedAt:   time.Now().UTC(),
	}
}
