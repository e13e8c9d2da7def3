//go:build !windows

package copyutil

import (
	"context"
	"fmt"
	"os/exec"
)

// rsyncStrategy shells out to rsync, preserving modification times and
// verifying transferred checksums.
type rsyncStrategy struct{}

func (rsyncStrategy) Name() string { return "rsync" }

func (rsyncStrategy) Copy(ctx context.Context, src, dst string) error {
	// Trailing slash on src: copy contents, so dst becomes the bag root.
	cmd := exec.CommandContext(ctx, "rsync", "-rlt", "--checksum", src+"/", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("rsync: %w: %s", err, out)
	}
	return nil
}

// DefaultStrategies returns the copy strategies in preference order for this
// platform.
func DefaultStrategies() []Strategy {
	return []Strategy{rsyncStrategy{}, nativeStrategy{}}
}
