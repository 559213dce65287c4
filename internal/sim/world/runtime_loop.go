package world

import (
	"context"
	"time"
)

func (p *Pipeline) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(p.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case <-ticker.C:
			p.Step()
		}
	}
}

func (p *Pipeline) Stop() { p.stopOnce.Do(func() { close(p.stop) }) }

func (p *Pipeline) TickRateHz() int { return p.cfg.TickRateHz }

// Idle reports whether no stage holds work. Chunks whose neighbors are
// missing may stay dirty and do not count.
func (p *Pipeline) Idle() bool {
	d := p.world.queue.depths()
	return d.ToGenerate == 0 && d.ToDespawn == 0 && d.Generating == 0 && d.FinishedGen == 0 &&
		d.Meshing == 0 && d.FinishedMesh == 0
}

// StepUntilIdle steps until Idle or the deadline passes; it reports whether
// the pipeline went idle. Tools and tests use it instead of Run.
func (p *Pipeline) StepUntilIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		p.Step()
		if p.Idle() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
