package ffmpeg

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
)

// ProgressParser extracts the encoder's position, in seconds, from one line
// of its diagnostic output.
type ProgressParser interface {
	ParseProgress(line string) (elapsed float64, ok bool)
}

var (
	reProgressTime = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	reDuration     = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+\.\d+)`)
)

// TimeParser reads the `time=HH:MM:SS.ss` token of ffmpeg's stats line.
type TimeParser struct{}

func (TimeParser) ParseProgress(line string) (float64, bool) {
	return matchClock(reProgressTime, line)
}

// ParseDurationText scans ffmpeg's input banner for `Duration: HH:MM:SS.ss`.
func ParseDurationText(text string) (float64, bool) {
	return matchClock(reDuration, text)
}

func matchClock(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	hh, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	mm, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	ss, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(hh*3600+mm*60) + ss, true
}

// progressTracker converts elapsed seconds to whole percentages and only
// reports values that rise above the previous report.
type progressTracker struct {
	duration float64
	last     int
}

func newProgressTracker(duration float64) *progressTracker {
	return &progressTracker{duration: math.Max(duration, 0.1), last: -1}
}

func (p *progressTracker) update(elapsed float64) (int, bool) {
	pct := int(elapsed / p.duration * 100)
	pct = max(0, min(100, pct))
	if pct <= p.last {
		return pct, false
	}
	p.last = pct
	return pct, true
}

// current is the last reported percentage, or 0 before the first report.
func (p *progressTracker) current() int {
	return max(0, p.last)
}

// scanLines splits on either line terminator; ffmpeg rewrites its stats line
// with a bare carriage return.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
