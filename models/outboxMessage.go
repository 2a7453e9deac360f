package models

import (
	"time"

	"github.com/mmdatafocus/factory_backend/config"
)

// OutboxMessageRecord is the transactional outbox row. Mutating workflows write
// one inside their transaction; the dispatcher publishes after commit.
type OutboxMessageRecord struct {
	ID                  int                `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId          string             `gorm:"size:64;not null;index" json:"business_id"`
	TransactionDateTime time.Time          `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int                `json:"reference_id"`
	ReferenceType       EventReferenceType `gorm:"type:enum('OP','CB','DM','WS','PR','SM')" json:"reference_type"`
	EventType           EventType          `gorm:"size:50;not null;index" json:"event_type"`
	Payload             []byte             `gorm:"type:blob" json:"payload"`
	IsProcessed         bool               `gorm:"index;not null" json:"is_processed"`
	// Publish happens after commit via dispatcher.
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPubSubMessage(record OutboxMessageRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:                  record.ID,
		BusinessId:          record.BusinessId,
		TransactionDateTime: record.TransactionDateTime,
		ReferenceId:         record.ReferenceId,
		ReferenceType:       string(record.ReferenceType),
		EventType:           string(record.EventType),
		Payload:             record.Payload,
		CorrelationId:       record.CorrelationId,
	}
}
