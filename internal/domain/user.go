package domain

import "time"

// StoredToken is a GitHub credential saved for a user
type StoredToken struct {
	ID        string
	Username  string
	Token     string
	TokenType string
	Scopes    string
	IsValid   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Masked returns the token with everything but its edges hidden
func (t *StoredToken) Masked() string {
	if len(t.Token) <= 12 {
		return "***"
	}
	return t.Token[:8] + "..." + t.Token[len(t.Token)-4:]
}

// UserProfile is the latest known profile snapshot of a user
type UserProfile struct {
	Username string `json:"username"`
	Profile
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
