package session

// Session is one signed-in session. CreatedAt and ExpiresAt are unix seconds.
type Session struct {
	SessionID string
	UserID    string
	Email     string
	CreatedAt int64
	ExpiresAt int64
}
