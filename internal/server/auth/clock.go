package auth

import "time"

// Clock supplies the current time to token issuance and validation.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
