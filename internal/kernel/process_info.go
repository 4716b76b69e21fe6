package kernel

import "sort"

// Clock is the simulation time state shared by a root model part and all
// of its sub model parts.
type Clock struct {
	Step      int
	Time      float64
	DeltaTime float64
}

// ProcessInfo is the process-wide information block of a root model part.
type ProcessInfo struct {
	clock  Clock
	values map[string]float64
}

func NewProcessInfo() *ProcessInfo {
	return &ProcessInfo{values: make(map[string]float64)}
}

func (p *ProcessInfo) Clock() Clock       { return p.clock }
func (p *ProcessInfo) SetClock(c Clock)   { p.clock = c }
func (p *ProcessInfo) Step() int          { return p.clock.Step }
func (p *ProcessInfo) Time() float64      { return p.clock.Time }
func (p *ProcessInfo) DeltaTime() float64 { return p.clock.DeltaTime }

func (p *ProcessInfo) SetStep(step int)             { p.clock.Step = step }
func (p *ProcessInfo) SetTime(t float64)            { p.clock.Time = t }
func (p *ProcessInfo) SetDeltaTime(dt float64)      { p.clock.DeltaTime = dt }
func (p *ProcessInfo) SetValue(k string, v float64) { p.values[k] = v }

func (p *ProcessInfo) Value(key string) float64 { return p.values[key] }

func (p *ProcessInfo) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Keys lists the named values in sorted order.
func (p *ProcessInfo) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Probe runs fn with the clock set to probe. The previous clock is restored
// when fn returns, fails or panics.
func (p *ProcessInfo) Probe(probe Clock, fn func() error) error {
	saved := p.clock
	defer func() { p.clock = saved }()

	p.clock = probe
	return fn()
}
