package limiter

import (
	"runtime"
	"time"
)

// CPULimiter keeps a busy loop near a target duty cycle by sleeping in
// proportion to the time worked since the last pause.
type CPULimiter struct {
	maxPercent float64
	lastSleep  time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// workSlice is the minimum work time between pauses.
const workSlice = 10 * time.Millisecond

// maxPause bounds a single pause after a long stretch of work.
const maxPause = time.Second

// NewCPULimiter returns a limiter for maxPercent. Values outside (0, 100)
// disable throttling.
func NewCPULimiter(maxPercent float64) *CPULimiter {
	return &CPULimiter{
		maxPercent: maxPercent,
		lastSleep:  time.Now(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

func (l *CPULimiter) Enabled() bool {
	return l != nil && l.maxPercent > 0 && l.maxPercent < 100
}

// Throttle is called between units of work (the crawler calls it once per
// directory visit).
func (l *CPULimiter) Throttle() {
	if !l.Enabled() {
		return
	}

	worked := l.now().Sub(l.lastSleep)
	if worked > workSlice {
		pause := time.Duration(float64(worked) * (100.0 - l.maxPercent) / l.maxPercent)
		if pause > maxPause {
			pause = maxPause
		}
		l.sleep(pause)
		l.lastSleep = l.now()
	}
	runtime.Gosched()
}

// SetMaxPercent updates the maximum CPU percentage
func (l *CPULimiter) SetMaxPercent(maxPercent float64) {
	l.maxPercent = maxPercent
}
