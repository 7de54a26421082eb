// Package sweep cycles the request payload size across reporting intervals.
package sweep

import "fmt"

// Controller tracks the intended request size. It doubles the size on every
// Advance and wraps back to the start once the doubled size exceeds the
// end. It never touches network buffers: the request pipeline picks up the
// new size on its next issue.
type Controller struct {
	start   int
	end     int
	current int
}

// New creates a controller positioned at start.
func New(start, end int) (*Controller, error) {
	if start <= 0 {
		return nil, fmt.Errorf("sweep start size must be positive, got %d", start)
	}
	if end < start {
		return nil, fmt.Errorf("sweep end size %d is below start size %d", end, start)
	}

	return &Controller{start: start, end: end, current: start}, nil
}

// Current returns the active payload size in bytes.
func (c *Controller) Current() int {
	return c.current
}

// Advance doubles the size, wrapping to the start when it would exceed the
// end, and returns the new size.
func (c *Controller) Advance() int {
	next := c.current * 2
	if next > c.end {
		next = c.start
	}
	c.current = next
	return c.current
}

// Start returns the lower bound of the sweep.
func (c *Controller) Start() int { return c.start }

// End returns the upper bound of the sweep.
func (c *Controller) End() int { return c.end }
