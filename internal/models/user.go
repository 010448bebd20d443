package models

import "time"

// User owns companies and receives alert emails for them.
type User struct {
	ID        string    `json:"id"` // usr_{uuid}
	Email     string    `json:"email" badgerhold:"index"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
