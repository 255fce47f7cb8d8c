package analysis

import (
	"sync"

	"github.com/legal-assist-poc/server/internal/agent/model"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Progress is what the status endpoint reports for a job.
type Progress struct {
	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
}

// ProgressTracker holds the progress of every job started by this process.
type ProgressTracker struct {
	mu   sync.RWMutex
	jobs map[string]Progress
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{jobs: make(map[string]Progress)}
}

func (t *ProgressTracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = Progress{Status: StatusProcessing, CurrentStep: model.StepQueued}
}

// Step records a finished stage. Unknown or finished jobs are ignored.
func (t *ProgressTracker) Step(id, step string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.jobs[id]
	if !ok || p.Status != StatusProcessing {
		return
	}
	p.CurrentStep = step
	if percent > p.Progress {
		p.Progress = percent
	}
	t.jobs[id] = p
}

func (t *ProgressTracker) Finish(id string, status Status, step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.jobs[id]
	p.Status = status
	if step != "" {
		p.CurrentStep = step
	}
	if status == StatusCompleted {
		p.Progress = 100
	}
	t.jobs[id] = p
}

func (t *ProgressTracker) Get(id string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.jobs[id]
	return p, ok
}

func (t *ProgressTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, id)
}
