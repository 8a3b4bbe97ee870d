package domain

import "time"

// Idempotency records a completed mutation keyed by (user_id, scope, key).
// Scope is the route plus its path parameters (e.g. "POST /posts/:id/comments
// 7f3c…"), so a key is only replayed for the same logical operation. The
// stored ResourceID lets a handler return the original result without
// re-running side effects.
type Idempotency struct {
	ID         string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_user_scope_key,priority:1"`
	Scope      string    `gorm:"type:varchar(255);not null;uniqueIndex:ux_idempotency_user_scope_key,priority:2"`
	Key        string    `gorm:"column:idem_key;type:varchar(200);not null;uniqueIndex:ux_idempotency_user_scope_key,priority:3"`
	ResourceID string    `gorm:"type:varchar(80);not null"`
	Status     int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
