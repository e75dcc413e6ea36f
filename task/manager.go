package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ffsqueeze/config"
	"github.com/lithammer/shortuuid/v4"
	"github.com/sirupsen/logrus"
)

type Manager struct {
	cfg            *config.Config
	log            *logrus.Entry
	batches        sync.Map
	batchQueue     chan *Batch
	concurrencySem chan struct{}
	prober         DurationProber
	encoder        Encoder
}

func NewManager(cfg *config.Config, log *logrus.Entry, prober DurationProber, encoder Encoder) (*Manager, error) {
	if prober == nil || encoder == nil {
		return nil, fmt.Errorf("task manager needs a prober and an encoder")
	}
	slots := cfg.MaxConcurrency
	if slots < 1 {
		// A zero-capacity semaphore would leave every batch queued forever.
		log.Warnf("MAX_CONCURRENCY %d is below 1, using 1", slots)
		slots = 1
	}
	return &Manager{
		cfg:            cfg,
		log:            log,
		batchQueue:     make(chan *Batch, 100),
		concurrencySem: make(chan struct{}, slots),
		prober:         prober,
		encoder:        encoder,
	}, nil
}

func (m *Manager) Start(ctx context.Context) {
	m.log.Infof("Task manager started. Concurrency limit: %d", cap(m.concurrencySem))
	go m.cleanupLoop(ctx)
	go m.workerLoop(ctx)
}

// workerLoop pulls batches from the queue and processes them. Each batch
// runs its files sequentially on its own goroutine.
func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.log.Info("Worker loop shutting down.")
			return
		case b := <-m.batchQueue:
			select {
			case m.concurrencySem <- struct{}{}:
			case <-ctx.Done():
				m.log.Info("Worker loop shutting down.")
				return
			}
			go func(b *Batch) {
				defer func() { <-m.concurrencySem }()
				m.processBatch(ctx, b)
			}(b)
		}
	}
}

// cleanupLoop forgets finished batches once they are older than the
// retention period. Output files are left alone.
func (m *Manager) cleanupLoop(ctx context.Context) {
	if m.cfg.BatchRetention <= 0 {
		return
	}
	ticker := time.NewTicker(m.cfg.BatchRetention / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Cleanup loop shutting down.")
			return
		case <-ticker.C:
			m.pruneFinished(time.Now())
		}
	}
}

func (m *Manager) pruneFinished(now time.Time) {
	m.batches.Range(func(key, value interface{}) bool {
		info := value.(*Batch).Info()
		if info.Status.IsTerminal() && now.Sub(info.CompletedAt) > m.cfg.BatchRetention {
			m.log.Debugf("Forgetting batch %s", info.ID)
			m.batches.Delete(key)
		}
		return true
	})
}

// Submit validates req, fills in defaults and queues a new batch.
func (m *Manager) Submit(req BatchRequest, listeners ...Listener) (*Batch, error) {
	if len(req.Inputs) == 0 {
		return nil, fmt.Errorf("at least one input file is required")
	}
	info := BatchInfo{
		Inputs:    make([]string, 0, len(req.Inputs)),
		OutputDir: req.OutputDir,
		TargetMiB: req.TargetMiB,
		TwoPass:   m.cfg.TwoPass,
		AutoTune:  m.cfg.AutoTune,
		CreatedAt: time.Now(),
	}
	for _, in := range req.Inputs {
		if in == "" {
			return nil, fmt.Errorf("input path must not be empty")
		}
		info.Inputs = append(info.Inputs, in)
	}
	if info.OutputDir == "" {
		info.OutputDir = m.cfg.OutputDir
	}
	if abs, err := filepath.Abs(info.OutputDir); err == nil {
		info.OutputDir = abs
	}
	if info.TargetMiB == 0 {
		info.TargetMiB = m.cfg.TargetMiB
	}
	if info.TargetMiB <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %d MiB", info.TargetMiB)
	}
	if req.TwoPass != nil {
		info.TwoPass = *req.TwoPass
	}
	if req.AutoTune != nil {
		info.AutoTune = *req.AutoTune
	}

	b := newBatch(fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix()), info, listeners)

	m.batches.Store(b.ID, b)
	select {
	case m.batchQueue <- b:
	default:
		m.batches.Delete(b.ID)
		return nil, ErrQueueFull
	}
	m.log.Infof("Batch %s submitted to queue with %d file(s).", b.ID, len(info.Inputs))
	return b, nil
}

func (m *Manager) Get(batchID string) (*Batch, bool) {
	if val, ok := m.batches.Load(batchID); ok {
		return val.(*Batch), true
	}
	return nil, false
}

func (m *Manager) List() []*Batch {
	var list []*Batch
	m.batches.Range(func(key, value interface{}) bool {
		list = append(list, value.(*Batch))
		return true
	})
	return list
}

// Cancel stops a queued batch immediately. A running batch finishes the
// file it is encoding and stops before the next one.
func (m *Manager) Cancel(batchID string) error {
	b, ok := m.Get(batchID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	b.RequestCancel()
	switch status := b.Status(); status {
	case StatusCompleted, StatusFailed, StatusAborted:
		return fmt.Errorf("cannot cancel batch in state: %s", status)
	case StatusIdle:
		if b.abortQueued() {
			m.log.Infof("Batch %s marked as aborted in queue.", b.ID)
			return nil
		}
		// Picked up concurrently; the flag stops it at the first file.
	}
	m.log.Infof("Cancellation requested for running batch %s.", b.ID)
	return nil
}

// OutputFile returns the last output of a completed batch if it still exists.
func (m *Manager) OutputFile(batchID string) (string, error) {
	b, ok := m.Get(batchID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	info := b.Info()
	if info.LastOutput == "" {
		return "", fmt.Errorf("batch %s has no output", batchID)
	}
	if _, err := os.Stat(info.LastOutput); err != nil {
		return "", fmt.Errorf("file not found")
	}
	return info.LastOutput, nil
}
