package engine

import "time"

// Clock is the wall-clock source used for every countdown computation.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// secondsLeft returns max(0, ceil((end - now) / 1s)).
func secondsLeft(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
