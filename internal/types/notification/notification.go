package notification

import "time"

type DeviceToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Push is one offline notification handed to the dispatcher when a user has
// no live connections to deliver an event to.
type Push struct {
	UserID    int64          `json:"userId"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}
