package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrEmptyCommand is returned by Run for an empty argv.
var ErrEmptyCommand = errors.New("empty command")

// Run executes argv to completion and returns its combined output.
// A non-zero exit is reported with the trimmed output in the error.
func Run(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 || argv[0] == "" {
		return "", ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from validated config
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("running %s: %w: %s", argv[0], err, output)
		}
		return output, fmt.Errorf("running %s: %w", argv[0], err)
	}
	return output, nil
}
