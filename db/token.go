package db

import "time"

// Token is the persisted access/refresh token pair. There is at most one row.
type Token struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Complete reports whether both halves of the pair are present.
func (t *Token) Complete() bool {
	return t != nil && t.AccessToken != "" && t.RefreshToken != ""
}
