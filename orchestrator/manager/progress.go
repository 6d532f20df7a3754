package manager

import (
	"slices"
	"sync"
	"time"

	"github.com/PeladoCollado/rpcload/stats"
	"github.com/PeladoCollado/rpcload/types"
)

// Status is what the status endpoint reports about a run.
type Status struct {
	RunID              string            `json:"runId"`
	Running            bool              `json:"running"`
	StartedAt          time.Time         `json:"startedAt"`
	CurrentStep        int               `json:"currentStep"`
	CurrentConnections int               `json:"currentConnections"`
	CurrentCompleted   uint64            `json:"currentCompleted"`
	Results            []types.RunResult `json:"results"`
}

// Progress tracks the ramp while it runs. All methods are safe on a nil receiver so the
// controller can run without a status surface.
type Progress struct {
	lock sync.Mutex

	runID       string
	startedAt   time.Time
	running     bool
	step        int
	connections int
	current     *stats.Stats
	results     []types.RunResult
}

func NewProgress(runID string) *Progress {
	return &Progress{
		runID:     runID,
		startedAt: time.Now(),
		running:   true,
		results:   make([]types.RunResult, 0),
	}
}

func (p *Progress) StartStep(connections int, current *stats.Stats) {
	if p == nil {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.step++
	p.connections = connections
	p.current = current
}

func (p *Progress) FinishStep(result types.RunResult) {
	if p == nil {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.results = append(p.results, result)
	p.current = nil
}

func (p *Progress) Finish() {
	if p == nil {
		return
	}
	p.lock.Lock()
	defer p.lock.Unlock()
	p.running = false
	p.connections = 0
	p.current = nil
}

func (p *Progress) Status() Status {
	p.lock.Lock()
	defer p.lock.Unlock()
	status := Status{
		RunID:              p.runID,
		Running:            p.running,
		StartedAt:          p.startedAt,
		CurrentStep:        p.step,
		CurrentConnections: p.connections,
		Results:            slices.Clone(p.results),
	}
	if p.current != nil {
		status.CurrentCompleted = p.current.Completed()
	}
	return status
}
