package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"ffsqueeze/config"
	"ffsqueeze/planner"
	"github.com/sirupsen/logrus"
)

// Pass identifies one encoder invocation within an encode.
type Pass int

const (
	PassSingle Pass = iota
	PassFirst
	PassSecond
)

func (p Pass) String() string {
	switch p {
	case PassFirst:
		return "pass 1/2"
	case PassSecond:
		return "pass 2/2"
	default:
		return "single pass"
	}
}

const (
	passLogPrefix = "ffmpeg2pass-"
	stderrTail    = 20
)

// ProgressFunc receives a status message and a 0..100 percentage.
type ProgressFunc func(message string, percent int)

// EncodeRequest describes one full encode of an input at a fixed plan.
type EncodeRequest struct {
	Input    string
	Output   string
	Duration float64
	Plan     planner.BitratePlan
	TwoPass  bool
	// PassLogDir holds the two-pass analysis logs. It should be private to
	// the job; an empty value means the working directory.
	PassLogDir string
}

// Driver runs ffmpeg for encode requests and turns its stderr into progress.
type Driver struct {
	cfg       *config.Config
	log       *logrus.Entry
	parser    ProgressParser
	extraArgs []string
}

func NewDriver(cfg *config.Config, log *logrus.Entry) (*Driver, error) {
	extra, err := ParseExtraArgs(cfg.FFExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("FF_EXTRA_ARGS: %w", err)
	}
	if _, err := exec.LookPath(cfg.FFBin); err != nil {
		// Not fatal here: every encode reports it as a per-file failure.
		log.Warnf("ffmpeg binary not found or not in PATH: %s", cfg.FFBin)
	}
	return &Driver{
		cfg:       cfg,
		log:       log,
		parser:    TimeParser{},
		extraArgs: extra,
	}, nil
}

// WithParser swaps the progress line parser.
func (d *Driver) WithParser(p ProgressParser) *Driver {
	d.parser = p
	return d
}

// Encode runs one full encode, single- or two-pass. It returns nil only when
// every pass exited with status 0.
func (d *Driver) Encode(ctx context.Context, req EncodeRequest, progress ProgressFunc) error {
	if progress == nil {
		progress = func(string, int) {}
	}
	removeStalePassLogs(req.PassLogDir, stem(req.Input))

	if !req.TwoPass {
		return d.runPass(ctx, req, PassSingle, progress)
	}
	if err := d.runPass(ctx, req, PassFirst, progress); err != nil {
		return err
	}
	return d.runPass(ctx, req, PassSecond, progress)
}

func (d *Driver) runPass(ctx context.Context, req EncodeRequest, pass Pass, progress ProgressFunc) error {
	name := filepath.Base(req.Input)
	label := name
	if pass != PassSingle {
		label = fmt.Sprintf("%s (%s)", name, pass)
	}
	log := d.log.WithFields(logrus.Fields{"file": name, "pass": int(pass)})

	bin, err := exec.LookPath(d.cfg.FFBin)
	if err != nil {
		progress(fmt.Sprintf("ffmpeg not found (%s)", d.cfg.FFBin), 0)
		return fmt.Errorf("%w: %s", ErrEncoderMissing, d.cfg.FFBin)
	}

	if err := d.checkResources(filepath.Dir(req.Output)); err != nil {
		progress(fmt.Sprintf("Not enough system resources: %v", err), 0)
		return fmt.Errorf("%w: %v", ErrInsufficientResources, err)
	}

	args := d.buildArgs(req, pass)
	cmd := exec.CommandContext(ctx, bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	log.Infof("Executing: %s %s", bin, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			progress(fmt.Sprintf("ffmpeg not found (%s)", d.cfg.FFBin), 0)
			return fmt.Errorf("%w: %v", ErrEncoderMissing, err)
		}
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	tracker := newProgressTracker(req.Duration)
	tail := make([]string, 0, stderrTail)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if elapsed, ok := d.parser.ParseProgress(line); ok {
			if pct, changed := tracker.update(elapsed); changed {
				progress(fmt.Sprintf("%s: %d%%", label, pct), pct)
			}
			continue
		}
		if len(tail) == stderrTail {
			tail = tail[1:]
		}
		tail = append(tail, line)
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("Reading ffmpeg output: %v", err)
	}
	// Keep the pipe drained so the child never blocks before Wait reaps it.
	_, _ = io.Copy(io.Discard, stderr)

	if err := cmd.Wait(); err != nil {
		last := tracker.current()
		if ctxErr := ctx.Err(); ctxErr != nil {
			progress(fmt.Sprintf("ffmpeg interrupted (%v)", ctxErr), last)
			return fmt.Errorf("ffmpeg %s of %s: %w", pass, name, ctxErr)
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		log.Errorf("ffmpeg failed with code %d", code)
		progress(fmt.Sprintf("ffmpeg failed (code %d)", code), last)
		return &ProcessError{
			Pass:        pass,
			ExitCode:    code,
			LastPercent: last,
			Stderr:      strings.Join(tail, "\n"),
			Err:         err,
		}
	}

	progress("Done "+label, 100)
	return nil
}

// buildArgs assembles the ffmpeg argument list for one pass.
func (d *Driver) buildArgs(req EncodeRequest, pass Pass) []string {
	v := req.Plan.VideoBitrate
	args := []string{
		"-y", "-hide_banner", "-loglevel", "info",
		"-i", req.Input,
		"-c:v", d.cfg.FFVideoCodec,
		"-b:v", strconv.Itoa(v),
		"-maxrate", strconv.Itoa(planner.MaxRate(v)),
		"-bufsize", strconv.Itoa(planner.BufSize(v)),
		"-preset", d.cfg.FFPreset,
		"-pix_fmt", d.cfg.FFPixFmt,
	}
	args = append(args, d.extraArgs...)

	passlog := passLogPath(req.PassLogDir, stem(req.Input))
	audio := []string{"-c:a", d.cfg.FFAudioCodec, "-b:a", strconv.Itoa(req.Plan.AudioBitrate)}

	switch pass {
	case PassFirst:
		args = append(args, "-an", "-pass", "1", "-passlogfile", passlog, "-f", "mp4", os.DevNull)
	case PassSecond:
		args = append(args, audio...)
		args = append(args, "-pass", "2", "-passlogfile", passlog, "-movflags", "+faststart", req.Output)
	default:
		args = append(args, audio...)
		args = append(args, "-movflags", "+faststart", req.Output)
	}
	return args
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func passLogPath(dir, stem string) string {
	if dir == "" {
		return passLogPrefix + stem
	}
	return filepath.Join(dir, passLogPrefix+stem)
}

// removeStalePassLogs deletes analysis logs a previous run left for stem.
// Failures are ignored.
func removeStalePassLogs(dir, stem string) {
	matches, err := filepath.Glob(passLogPath(dir, globEscape(stem)) + "*")
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

func globEscape(s string) string {
	if runtime.GOOS == "windows" {
		return s
	}
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
