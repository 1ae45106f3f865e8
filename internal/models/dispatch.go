package models

import "github.com/google/uuid"

type DispatchStatus string

const (
	DispatchSent    DispatchStatus = "sent"
	DispatchSkipped DispatchStatus = "skipped"
	DispatchError   DispatchStatus = "error"
)

// DispatchResult reports what happened to one notification in a run.
type DispatchResult struct {
	NotificationID uuid.UUID      `json:"notificationId"`
	Status         DispatchStatus `json:"status"`
	RecipientCount int            `json:"recipientCount,omitempty"`
	FailedCount    int            `json:"failedCount,omitempty"`
	Message        string         `json:"message,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// DashboardStats backs the admin overview.
type DashboardStats struct {
	TotalSubscribers     int           `json:"totalSubscribers"`
	PendingNotifications int           `json:"pendingNotifications"`
	SentNotifications    int           `json:"sentNotifications"`
	RecentSubscribers    []*Subscriber `json:"recentSubscribers"`
}
