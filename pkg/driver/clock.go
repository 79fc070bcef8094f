package driver

import "time"

// Clock is the monotonic time source used by the blocking operations.
// Injecting it lets tests drive timeouts deterministically instead of
// spinning host cycles.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
