package domain

import "time"

// AccessToken is the metadata of a bearer token handed out at login.
// Department is copied from the user so clients can route specialists to their queue.
type AccessToken struct {
	UserID     string
	Role       Role
	Department *Department
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the token is no longer valid at now.
func (t AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
