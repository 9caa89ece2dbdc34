package domain

import "time"

// Clock abstracts time so reservation timeouts are testable without real
// time passing.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
