//go:build windows

package packager

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

type windowsOwnerLookup struct{}

// NewOwnerLookup returns the directory-listing owner lookup for this
// platform. Windows has no portable stat owner, so the output of `dir /q`
// is parsed instead.
func NewOwnerLookup() OwnerLookup { return windowsOwnerLookup{} }

func (windowsOwnerLookup) Owner(path string) (string, error) {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	out, err := exec.Command("cmd", "/c", "dir", "/q", parent).Output()
	if err != nil {
		return "", fmt.Errorf("dir /q %s: %w", parent, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, base) {
			continue
		}
		// Owner column format: DOMAIN\account.
		for _, field := range strings.Fields(line) {
			if strings.Contains(field, `\`) {
				parts := strings.SplitN(field, `\`, 2)
				return parts[len(parts)-1], nil
			}
		}
	}
	return "", fmt.Errorf("owner of %s not found in directory listing", path)
}
