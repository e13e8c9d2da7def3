//go:build windows

package copyutil

import (
	"context"
	"fmt"
	"os/exec"
)

// robocopyStrategy shells out to robocopy. Exit codes below 8 indicate
// success with varying amounts of work done.
type robocopyStrategy struct{}

func (robocopyStrategy) Name() string { return "robocopy" }

func (robocopyStrategy) Copy(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "robocopy", src, dst, "/E", "/COPY:DAT", "/R:2", "/W:5")
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() < 8 {
			return nil
		}
		return fmt.Errorf("robocopy: %w: %s", err, out)
	}
	return nil
}

// DefaultStrategies returns the copy strategies in preference order for this
// platform.
func DefaultStrategies() []Strategy {
	return []Strategy{robocopyStrategy{}, nativeStrategy{}}
}
