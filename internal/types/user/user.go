package user

import "time"

type User struct {
	ID            int64     `json:"id"`
	ClerkID       string    `json:"clerkId"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Summary is the trimmed shape embedded in friend lists and request
// payloads, where the full profile would be wasteful.
type Summary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type CreateUserRequest struct {
	ClerkID       string `json:"clerkId"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	ImageURL      string `json:"imageUrl"`
	EmailVerified bool   `json:"emailVerified"`
}
