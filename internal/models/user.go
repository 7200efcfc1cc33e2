package models

import "time"

// User is a registered account with its profile fields.
type User struct {
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // bcrypt hash, never serialized
	CoverPhoto   string     `json:"coverPhoto"`
	ProfilePhoto string     `json:"profilePhoto"`
	Favorites    []string   `json:"favorites"`
	Feedback     []Feedback `json:"feedback"`
}

// Feedback is one feedback note left by a user.
type Feedback struct {
	Date time.Time `json:"date"`
	Text string    `json:"text"`
}

// Job is one job posting seeded from the upstream public API.
type Job struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Salary      string `json:"salary"`
	Image       string `json:"image"`
}
