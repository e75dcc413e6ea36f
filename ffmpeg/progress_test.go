package ffmpeg

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeParser(t *testing.T) {
	tests := []struct {
		line string
		want float64
		ok   bool
	}{
		{"frame=  100 fps=25 q=28.0 size=1024kB time=00:01:02.50 bitrate=134.2kbits/s", 62.5, true},
		{"size=1kB time=01:00:00.00 bitrate=1", 3600, true},
		{"time=00:00:07 speed=1x", 7, true},
		{"frame=0 time=N/A bitrate=N/A", 0, false},
		{"  Duration: 00:01:00.00, start: 0.000000", 0, false},
	}
	for _, tt := range tests {
		got, ok := TimeParser{}.ParseProgress(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.InDelta(t, tt.want, got, 1e-9, tt.line)
	}
}

func TestParseDurationText(t *testing.T) {
	banner := "Input #0, matroska,webm, from 'a.mkv':\n  Duration: 01:02:03.45, start: 0.000000, bitrate: 2000 kb/s\n"
	d, ok := ParseDurationText(banner)
	assert.True(t, ok)
	assert.InDelta(t, 3723.45, d, 1e-9)

	_, ok = ParseDurationText("Duration: N/A, bitrate: N/A")
	assert.False(t, ok)
}

func TestProgressTracker(t *testing.T) {
	p := newProgressTracker(200)
	assert.Equal(t, 0, p.current())

	var got []int
	for _, elapsed := range []float64{0, 0.5, 1, 2, 2.1, 1.5, 100, 300} {
		if pct, ok := p.update(elapsed); ok {
			got = append(got, pct)
		}
	}
	assert.Equal(t, []int{0, 1, 50, 100}, got)
	assert.Equal(t, 100, p.current())
}

func TestProgressTracker_FloorsDuration(t *testing.T) {
	p := newProgressTracker(0)
	assert.Equal(t, 0.1, p.duration)
	pct, ok := p.update(0.1)
	assert.True(t, ok)
	assert.Equal(t, 100, pct)
}

func TestScanLines(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("a\rb\r\nc\nd"))
	sc.Split(scanLines)
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	assert.Equal(t, []string{"a", "b", "", "c", "d"}, got)
}
