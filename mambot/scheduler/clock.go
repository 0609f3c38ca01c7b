package scheduler

import "time"

// Clock abstracts time for boundary math so tests can advance days without
// sleeping.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}
