package models

import "time"

type Subscriber struct {
	ID            int
	Email         string
	SourceAddress string
	SubscribedAt  time.Time
}

// RateLimitAttempt is one accepted signup attempt from a source address.
type RateLimitAttempt struct {
	ID            int
	SourceAddress string
	AttemptedAt   time.Time
}
