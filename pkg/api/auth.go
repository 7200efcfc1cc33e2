// Package api holds the request/response shapes shared by the client and the
// server.
package api

import "time"

// SignupRequest is the body of POST /api/signup.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// SignupResponse is returned with 201 on successful signup.
type SignupResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned with 200 on successful login. Token is additive
// to the original profile shape and authorizes profile updates.
type LoginResponse struct {
	Username     string          `json:"username"`
	Token        string          `json:"token"`
	CoverPhoto   string          `json:"coverPhoto"`
	ProfilePhoto string          `json:"profilePhoto"`
	Favorites    []string        `json:"favorites"`
	Feedback     []FeedbackEntry `json:"feedback"`
}

// FeedbackEntry is one feedback note on a profile.
type FeedbackEntry struct {
	Date time.Time `json:"date"`
	Text string    `json:"text"`
}

// UserProfile is the profile shape returned by PUT /api/user/{username}.
type UserProfile struct {
	Username     string          `json:"username"`
	CoverPhoto   string          `json:"coverPhoto"`
	ProfilePhoto string          `json:"profilePhoto"`
	Favorites    []string        `json:"favorites"`
	Feedback     []FeedbackEntry `json:"feedback"`
}

// UpdateUserRequest carries a partial profile update; only non-nil fields are
// applied.
type UpdateUserRequest struct {
	CoverPhoto   *string          `json:"coverPhoto,omitempty"`
	ProfilePhoto *string          `json:"profilePhoto,omitempty"`
	Favorites    *[]string        `json:"favorites,omitempty"`
	Feedback     *[]FeedbackEntry `json:"feedback,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx response: a conventional
// status code plus a human-readable message, no machine-readable error code.
type ErrorResponse struct {
	Message string `json:"message"`
}
