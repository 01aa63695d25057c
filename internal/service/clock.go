package service

import "time"

// Clock supplies the current time to freshness checks
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}
