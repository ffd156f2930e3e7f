package models

import "time"

// ActivityEntry records a single API request event.
type ActivityEntry struct {
	ID             int64
	RequestID      string
	Timestamp      time.Time
	Username       string
	Operation      string
	Path           string
	Status         string
	ResponseCode   int
	ResponseTimeMs int64
	ClientIP       string
}
