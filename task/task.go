package task

import (
	"sync"
	"sync/atomic"
	"time"

	"ffsqueeze/planner"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// IsTerminal reports whether a batch in this state will never change again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAborted
}

// BatchRequest is what a caller submits. Zero values fall back to the
// configured defaults.
type BatchRequest struct {
	Inputs    []string `json:"inputs" binding:"required,min=1"`
	OutputDir string   `json:"outputDir"`
	TargetMiB int      `json:"targetMiB"`
	TwoPass   *bool    `json:"twoPass"`
	AutoTune  *bool    `json:"autoTune"`
}

// Job is one input file of a batch. It does not change once built.
type Job struct {
	Input       string
	Output      string
	TargetMiB   int
	TargetBytes int64
	TwoPass     bool
	AutoTune    bool
}

// Attempt records one full encode of a file.
type Attempt struct {
	Plan        planner.BitratePlan `json:"plan"`
	Success     bool                `json:"success"`
	LastPercent int                 `json:"lastPercent"`
	Error       string              `json:"error,omitempty"`
}

// FileReport summarises the work done on one input.
type FileReport struct {
	Input      string    `json:"input"`
	Output     string    `json:"output,omitempty"`
	Duration   float64   `json:"duration"`
	OutputSize int64     `json:"outputSize,omitempty"`
	Attempts   []Attempt `json:"attempts,omitempty"`
}

// BatchInfo is the externally visible state of a batch.
type BatchInfo struct {
	ID          string       `json:"id"`
	Status      Status       `json:"status"`
	Inputs      []string     `json:"inputs"`
	OutputDir   string       `json:"outputDir"`
	TargetMiB   int          `json:"targetMiB"`
	TwoPass     bool         `json:"twoPass"`
	AutoTune    bool         `json:"autoTune"`
	Message     string       `json:"message,omitempty"`
	Percent     int          `json:"percent"`
	Success     bool         `json:"success"`
	LastOutput  string       `json:"lastOutput,omitempty"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	Error       string       `json:"error,omitempty"`
	Files       []FileReport `json:"files,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   time.Time    `json:"startedAt,omitempty"`
	CompletedAt time.Time    `json:"completedAt,omitempty"`
}

// Batch is a list of files encoded one after another toward the same
// target size.
type Batch struct {
	ID string

	mu        sync.Mutex
	info      BatchInfo
	events    []Event
	subs      map[int]chan Event
	nextSub   int
	listeners []Listener
	done      chan struct{}

	cancelRequested atomic.Bool
}

func newBatch(id string, info BatchInfo, listeners []Listener) *Batch {
	info.ID = id
	info.Status = StatusIdle
	return &Batch{
		ID:        id,
		info:      info,
		subs:      make(map[int]chan Event),
		listeners: listeners,
		done:      make(chan struct{}),
	}
}

// Info returns a copy of the batch state.
func (b *Batch) Info() BatchInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	info := b.info
	info.Inputs = append([]string(nil), b.info.Inputs...)
	info.Files = make([]FileReport, len(b.info.Files))
	for i, f := range b.info.Files {
		f.Attempts = append([]Attempt(nil), f.Attempts...)
		info.Files[i] = f
	}
	return info
}

func (b *Batch) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.info.Status
}

// Done is closed once the batch has delivered its finished event.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// RequestCancel asks the batch to stop before its next file.
func (b *Batch) RequestCancel() {
	b.cancelRequested.Store(true)
}

func (b *Batch) cancelled() bool {
	return b.cancelRequested.Load()
}

// jobs builds the per-file work list.
func (b *Batch) jobs() []Job {
	info := b.Info()
	jobs := make([]Job, 0, len(info.Inputs))
	for _, in := range info.Inputs {
		jobs = append(jobs, Job{
			Input:       in,
			Output:      outputPath(info.OutputDir, in, info.TargetMiB),
			TargetMiB:   info.TargetMiB,
			TargetBytes: planner.TargetBytes(info.TargetMiB),
			TwoPass:     info.TwoPass,
			AutoTune:    info.AutoTune,
		})
	}
	return jobs
}

func (b *Batch) markRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.info.Status != StatusIdle {
		return false
	}
	b.info.Status = StatusRunning
	b.info.StartedAt = time.Now()
	return true
}

func (b *Batch) addFile(f FileReport) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.info.Files = append(b.info.Files, f)
	return len(b.info.Files) - 1
}

func (b *Batch) updateFile(i int, fn func(*FileReport)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.info.Files[i])
}
