// Package optimization drives shape optimization: an optimizer updates the
// design model part, and the internal analyzer rebuilds and evaluates the
// responses it asks for through the communicator.
package optimization

import (
	"errors"
	"fmt"
)

// ErrNotRequested is returned when a response reports a quantity nobody
// asked for.
var ErrNotRequested = errors.New("quantity not requested")

type request struct {
	value, gradient bool

	hasValue    bool
	v           float64
	hasGradient bool
	g           map[int][3]float64
}

// Communicator carries the requests of the optimizer to the analyzer and
// the reported values and gradients back.
type Communicator struct {
	requests map[string]*request
}

func NewCommunicator() *Communicator {
	return &Communicator{requests: make(map[string]*request)}
}

func (c *Communicator) get(id string) *request {
	r, ok := c.requests[id]
	if !ok {
		r = &request{}
		c.requests[id] = r
	}
	return r
}

func (c *Communicator) RequestValue(id string)    { c.get(id).value = true }
func (c *Communicator) RequestGradient(id string) { c.get(id).gradient = true }

// Clear drops every request and report.
func (c *Communicator) Clear() {
	c.requests = make(map[string]*request)
}

func (c *Communicator) IsRequestingValueOf(id string) bool {
	r, ok := c.requests[id]
	return ok && r.value
}

func (c *Communicator) IsRequestingGradientOf(id string) bool {
	r, ok := c.requests[id]
	return ok && r.gradient
}

func (c *Communicator) ReportValue(id string, v float64) error {
	if !c.IsRequestingValueOf(id) {
		return fmt.Errorf("value of %q: %w", id, ErrNotRequested)
	}
	r := c.requests[id]
	r.v, r.hasValue = v, true
	return nil
}

func (c *Communicator) ReportGradient(id string, g map[int][3]float64) error {
	if !c.IsRequestingGradientOf(id) {
		return fmt.Errorf("gradient of %q: %w", id, ErrNotRequested)
	}
	r := c.requests[id]
	r.g, r.hasGradient = g, true
	return nil
}

func (c *Communicator) Value(id string) (float64, bool) {
	r, ok := c.requests[id]
	if !ok || !r.hasValue {
		return 0, false
	}
	return r.v, true
}

func (c *Communicator) Gradient(id string) (map[int][3]float64, bool) {
	r, ok := c.requests[id]
	if !ok || !r.hasGradient {
		return nil, false
	}
	return r.g, true
}
