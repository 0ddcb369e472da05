package domain

import "time"

// Idempotency represents a recorded result of a previously processed send,
// keyed by (user_id, thread_id, key). It enables safe retries for message
// POSTs by returning the originally appended message without re-executing
// side effects.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_thread_key,priority:1"`
	ThreadID  string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_thread_key,priority:2"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_thread_key,priority:3"`
	MessageID string    `gorm:"type:char(36);not null"`
	Status    int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	ExpiresAt time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
