package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ffsqueeze/ffmpeg"
	"ffsqueeze/planner"
	"github.com/sirupsen/logrus"
)

// DurationProber reports a media duration in seconds, 0 when unknown.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) float64
}

// Encoder performs one full (single- or two-pass) encode.
type Encoder interface {
	Encode(ctx context.Context, req ffmpeg.EncodeRequest, progress ffmpeg.ProgressFunc) error
}

func outputPath(dir, input string, targetMiB int) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, fmt.Sprintf("%s_%dMiB.mp4", stem, targetMiB))
}

// processBatch encodes the batch's files in order and stops at the first
// failure or at a cancellation request seen between files.
func (m *Manager) processBatch(ctx context.Context, b *Batch) {
	log := m.log.WithField("batch", b.ID)
	if !b.markRunning() {
		log.Infof("Batch %s was %s before processing.", b.ID, b.Status())
		return
	}
	log.Infof("Processing batch %s", b.ID)

	info := b.Info()
	if err := os.MkdirAll(info.OutputDir, 0o755); err != nil {
		b.progress(fmt.Sprintf("Cannot create output folder %s", info.OutputDir), 0)
		m.finish(log, b, "", fmt.Errorf("create output dir: %w", err))
		return
	}

	var (
		lastOut string
		runErr  error
	)
	for _, job := range b.jobs() {
		if b.cancelled() {
			runErr = ErrUserCancelled
			break
		}
		out, err := m.runJob(ctx, log, b, job)
		if out != "" {
			lastOut = out
		}
		if err != nil {
			runErr = err
			break
		}
	}
	m.finish(log, b, lastOut, runErr)
}

func (m *Manager) finish(log *logrus.Entry, b *Batch, lastOut string, err error) {
	status := StatusCompleted
	switch {
	case errors.Is(err, ErrUserCancelled), b.cancelled() && errors.Is(err, context.Canceled):
		status = StatusAborted
		log.Infof("Batch %s cancelled.", b.ID)
	case err != nil:
		status = StatusFailed
		log.Errorf("Batch %s failed: %v", b.ID, err)
	default:
		log.Infof("Batch %s completed successfully.", b.ID)
	}
	b.finish(status, lastOut, err)
}

// runJob takes one file through probe, plan, encode and the optional
// auto-tune. It returns the output path once one has been chosen.
func (m *Manager) runJob(ctx context.Context, log *logrus.Entry, b *Batch, job Job) (string, error) {
	name := filepath.Base(job.Input)
	log = log.WithField("file", name)

	b.progress("Analyzing "+name, 0)
	report := b.addFile(FileReport{Input: job.Input})

	dur := m.prober.ProbeDuration(ctx, job.Input)
	if dur <= 0 {
		b.progress("Cannot read duration for "+name, 0)
		return "", fmt.Errorf("%s: %w", name, ffmpeg.ErrUnknownDuration)
	}

	plan := planner.Plan(job.TargetBytes, dur, job.TargetMiB)
	log.Infof("Duration %.2fs, video %d bps, audio %d bps", dur, plan.VideoBitrate, plan.AudioBitrate)
	b.updateFile(report, func(f *FileReport) {
		f.Duration = dur
		f.Output = job.Output
	})

	passDir, err := os.MkdirTemp(m.cfg.WorkDir, "ffsqueeze-"+b.ID+"-")
	if err != nil {
		return job.Output, fmt.Errorf("create pass log dir: %w", err)
	}
	defer os.RemoveAll(passDir)

	req := ffmpeg.EncodeRequest{
		Input:      job.Input,
		Output:     job.Output,
		Duration:   dur,
		Plan:       plan,
		TwoPass:    job.TwoPass,
		PassLogDir: passDir,
	}
	if err := m.encode(ctx, b, report, req); err != nil {
		return job.Output, err
	}
	if !job.AutoTune {
		m.recordSize(b, report, job.Output)
		return job.Output, nil
	}
	return job.Output, m.autoTune(ctx, log, b, report, job, req)
}

// autoTune checks the produced size and, when it falls outside the tolerance
// band, re-encodes exactly once with a corrected video bitrate. The second
// attempt is final.
func (m *Manager) autoTune(ctx context.Context, log *logrus.Entry, b *Batch, report int, job Job, req ffmpeg.EncodeRequest) error {
	name := filepath.Base(job.Input)
	size := m.recordSize(b, report, job.Output)
	if size <= 0 {
		b.progress("Cannot read output size for "+name, 0)
		return fmt.Errorf("%s: %w", job.Output, ErrOutputUnreadable)
	}

	ratio := planner.SizeRatio(size, job.TargetBytes)
	if !planner.NeedsRetune(ratio) {
		log.Infof("Output is %.3fx target, within tolerance", ratio)
		return nil
	}

	newVideo := planner.Retune(req.Plan.VideoBitrate, ratio)
	log.Infof("Output is %.3fx target, re-encoding at %d bps (was %d)", ratio, newVideo, req.Plan.VideoBitrate)
	b.progress(fmt.Sprintf("Auto-tune bitrate → %d kbps", newVideo/1000), 0)

	req.Plan.VideoBitrate = newVideo
	if err := m.encode(ctx, b, report, req); err != nil {
		return err
	}
	m.recordSize(b, report, job.Output)
	return nil
}

// encode runs one attempt under the per-attempt timeout and records it.
func (m *Manager) encode(ctx context.Context, b *Batch, report int, req ffmpeg.EncodeRequest) error {
	if m.cfg.FFTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.FFTimeout)
		defer cancel()
	}

	last := 0
	err := m.encoder.Encode(ctx, req, func(message string, percent int) {
		last = percent
		b.progress(message, percent)
	})

	attempt := Attempt{Plan: req.Plan, Success: err == nil, LastPercent: last}
	if err != nil {
		attempt.Error = err.Error()
	}
	b.updateFile(report, func(f *FileReport) {
		f.Attempts = append(f.Attempts, attempt)
	})
	return err
}

// recordSize stores and returns the output size, 0 when it cannot be read.
func (m *Manager) recordSize(b *Batch, report int, path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		m.log.Warnf("Cannot stat %s: %v", path, err)
		return 0
	}
	b.updateFile(report, func(f *FileReport) { f.OutputSize = fi.Size() })
	return fi.Size()
}
