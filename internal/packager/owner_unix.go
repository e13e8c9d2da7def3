//go:build !windows

package packager

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

type unixOwnerLookup struct{}

// NewOwnerLookup returns the stat-based owner lookup for this platform.
func NewOwnerLookup() OwnerLookup { return unixOwnerLookup{} }

func (unixOwnerLookup) Owner(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("no stat information for %s", path)
	}
	u, err := user.LookupId(strconv.FormatUint(uint64(st.Uid), 10))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}
