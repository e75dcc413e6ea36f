package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Options the driver sets itself; extra args may not override them.
var reservedArgs = map[string]bool{
	"-i":           true,
	"-y":           true,
	"-pass":        true,
	"-passlogfile": true,
	"-b:v":         true,
	"-b:a":         true,
	"-maxrate":     true,
	"-bufsize":     true,
	"-an":          true,
	"-f":           true,
}

// SplitCommand securely splits a command string into a slice of arguments.
// It prevents shell injection by not using a shell.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	return args, nil
}

// ValidateExtraArgs checks user-supplied encoder options before they are
// spliced into every pass.
func ValidateExtraArgs(args []string) error {
	for _, arg := range args {
		if reservedArgs[arg] {
			return fmt.Errorf("option %s is managed by ffsqueeze and cannot be overridden", arg)
		}
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}
	return nil
}

// ParseExtraArgs splits and validates the FF_EXTRA_ARGS setting.
func ParseExtraArgs(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, nil
	}
	args, err := SplitCommand(command)
	if err != nil {
		return nil, err
	}
	if err := ValidateExtraArgs(args); err != nil {
		return nil, err
	}
	return args, nil
}
