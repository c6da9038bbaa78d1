package db

import "time"

// Server is a cached row of the backend's server inventory.
type Server struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"index" json:"name"`
	IP        string    `json:"ip"`
	Port      int       `json:"port"`
	Username  string    `json:"username"`
	Data      string    `json:"data"` // raw JSON as returned by the API
	UpdatedAt time.Time `json:"updated_at"`
}
