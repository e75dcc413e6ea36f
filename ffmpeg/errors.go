package ffmpeg

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownDuration means neither probing strategy produced a duration.
	ErrUnknownDuration = errors.New("unknown media duration")
	// ErrEncoderMissing means the encoder executable could not be found.
	ErrEncoderMissing = errors.New("encoder executable not found")
	// ErrEncoderFailed matches any *ProcessError.
	ErrEncoderFailed = errors.New("encoder process failed")
	// ErrInsufficientResources means the host lacks the headroom configured
	// by the THROTTLE_* settings.
	ErrInsufficientResources = errors.New("insufficient system resources")
)

// ProcessError reports an encoder pass that exited unsuccessfully.
type ProcessError struct {
	Pass        Pass
	ExitCode    int
	LastPercent int
	// Stderr holds the last lines the encoder wrote before exiting.
	Stderr string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg %s exited with code %d at %d%%", e.Pass, e.ExitCode, e.LastPercent)
}

func (e *ProcessError) Unwrap() error { return e.Err }

func (e *ProcessError) Is(target error) bool { return target == ErrEncoderFailed }
