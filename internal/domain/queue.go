package domain

import "time"

// NotificationType is the kind of change reported to the indexing service.
type NotificationType string

const (
	NotifyUpdated NotificationType = "updated"
	NotifyDeleted NotificationType = "deleted"
)

// QueueStatus is a state of the indexing queue state machine.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// Terminal reports whether no further automatic work is due in this state.
func (s QueueStatus) Terminal() bool {
	return s == QueueCompleted || s == QueueFailed
}

// QueueItem is one durable indexing notification intent.
type QueueItem struct {
	ID           string           `json:"id"`
	ArticleID    string           `json:"articleId"`
	ArticleTitle string           `json:"articleTitle"`
	URL          string           `json:"url"`
	Type         NotificationType `json:"type"`
	Status       QueueStatus      `json:"status"`
	RetryCount   int              `json:"retryCount"`
	MaxRetries   int              `json:"maxRetries"`
	LastError    string           `json:"lastError,omitempty"`
	ErrorCode    ErrorClass       `json:"errorCode,omitempty"`
	AddedAt      time.Time        `json:"addedAt"`
	ProcessedAt  *time.Time       `json:"processedAt,omitempty"`
}

// IndexingStats is the aggregate record of successful notifications.
type IndexingStats struct {
	TotalIndexed  int64      `json:"totalIndexed"`
	LastIndexedAt *time.Time `json:"lastIndexedAt,omitempty"`
}
