package world

// PipelineMetrics is a read-only view of the pipeline published after each
// tick. It is written by the tick loop and read from HTTP handlers and tests.
type PipelineMetrics struct {
	Tick          uint64        `json:"tick"`
	Resident      int           `json:"resident_chunks"`
	QueueDepths   QueueDepths   `json:"queue_depths"`
	BudgetLeft    int64         `json:"budget_left"`
	StepMS        float64       `json:"step_ms"`
	Stats         StatsSnapshot `json:"stats"`
	RunningTasks  int64         `json:"running_tasks"`
	LoadCenter    [3]int        `json:"load_center"`
	LoadRadius    int           `json:"load_radius"`
	LoaderEnabled bool          `json:"loader_enabled"`
}

func (p *Pipeline) Metrics() PipelineMetrics {
	if p == nil {
		return PipelineMetrics{}
	}
	v := p.metrics.Load()
	if v == nil {
		return PipelineMetrics{}
	}
	m, ok := v.(PipelineMetrics)
	if !ok {
		return PipelineMetrics{}
	}
	return m
}

func (p *Pipeline) publishMetrics(budgetLeft int64, stepMS float64) {
	m := PipelineMetrics{
		Tick:         p.tick.Load(),
		Resident:     p.world.chunks.Len(),
		QueueDepths:  p.world.queue.depths(),
		BudgetLeft:   budgetLeft,
		StepMS:       stepMS,
		Stats:        p.stats.Snapshot(),
		RunningTasks: p.exec.Running(),
	}
	if l := p.loader; l != nil {
		c, r := l.Center()
		m.LoadCenter = [3]int{c.X, c.Y, c.Z}
		m.LoadRadius = r
		m.LoaderEnabled = true
	}
	p.metrics.Store(m)
}
