package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/femstage/internal/kernel"
	"github.com/san-kum/femstage/internal/storage"
)

// Send delivers a message to the live view.
type Send func(tea.Msg)

// Source yields the model part drawn by a Feed. Solvers are sources.
type Source interface {
	ComputingModelPart() *kernel.ModelPart
}

// Feed is a stage observer that sends at most one snapshot per frame. A
// zero vector draws the DrawnVector of the model part.
type Feed struct {
	source   Source
	vector   kernel.Vector
	send     Send
	interval time.Duration

	last    time.Time
	step    int
	time    float64
	seen    bool
	flushed bool
}

func NewFeed(source Source, v kernel.Vector, send Send, interval time.Duration) *Feed {
	return &Feed{source: source, vector: v, send: send, interval: interval}
}

func (f *Feed) OnStep(step int, t float64) {
	f.step, f.time, f.seen = step, t, true
	if time.Since(f.last) < f.interval {
		f.flushed = false
		return
	}
	f.last = time.Now()
	f.flushed = true
	f.send(f.capture(step, t))
}

func (f *Feed) capture(step int, t float64) StepMsg {
	mp := f.source.ComputingModelPart()
	v := f.vector
	if v == (kernel.Vector{}) {
		v = DrawnVector(mp)
	}
	return StepMsg(Capture(mp, v, step, t))
}

// Flush sends the last step if it was held back.
func (f *Feed) Flush() {
	if !f.seen || f.flushed {
		return
	}
	f.flushed = true
	f.send(f.capture(f.step, f.time))
}

// IterationFeed forwards every optimization iteration.
type IterationFeed struct{ send Send }

func NewIterationFeed(send Send) *IterationFeed { return &IterationFeed{send: send} }

func (f *IterationFeed) OnIteration(it storage.Iteration) { f.send(IterationMsg(it)) }

// Work is the run shown by the live view.
type Work func(ctx context.Context, send Send) error

// Run shows m while work runs. Quitting the view cancels the work. The
// result is the error of work.
func Run(ctx context.Context, m *Live, work Work, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancel = cancel

	p := tea.NewProgram(m, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := work(gctx, p.Send)
		p.Send(DoneMsg{Err: err})
		return err
	})
	g.Go(func() error {
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	return g.Wait()
}
