package domain

import "time"

// Session is the server-side half of the dual credential channel. The row
// stores a trimmed projection of the user so no request on the happy path
// has to touch the users table.
type Session struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
