package models

import "time"

// IdempotencyKey records one handler's processing of one message. The unique
// index makes duplicate deliveries fail fast on insert.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"size:64;not null;uniqueIndex:uniq_idem,priority:1" json:"business_id"`
	HandlerName string            `gorm:"size:100;not null;uniqueIndex:uniq_idem,priority:2" json:"handler_name"`
	MessageId   string            `gorm:"size:255;not null;uniqueIndex:uniq_idem,priority:3" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;default:'STARTED'" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
