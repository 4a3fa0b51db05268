package core

import "time"

// Clock is the monotonic time source handed to the render tick. The
// surface system never reads the wall clock itself; it consumes the
// ticks produced here (or by tests).
type Clock struct {
	start   time.Time
	elapsed time.Duration
	started bool
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.started {
		// time.Since reads the monotonic reading carried by start.
		c.elapsed = time.Since(c.start)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.start = time.Now()
	c.elapsed = 0
	c.started = true
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.started = false
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// Tick returns the elapsed time as a monotonic timestamp.
func (c *Clock) Tick() Tick {
	c.Update()
	return Tick(c.elapsed)
}

// Tick is a monotonic timestamp measured from an arbitrary origin.
type Tick time.Duration

// Sub returns the delta between two ticks, clamped at zero so a tick
// source that repeats a timestamp never yields a negative frame time.
func (t Tick) Sub(prev Tick) time.Duration {
	if t <= prev {
		return 0
	}
	return time.Duration(t - prev)
}
