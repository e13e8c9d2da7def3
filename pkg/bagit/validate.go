package bagit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError enumerates everything wrong with a bag: missing or
// mismatched payload files, unlisted files, and oxum disagreement.
type ValidationError struct {
	Path     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bag %s is invalid: %s", e.Path, strings.Join(e.Problems, "; "))
}

// Validate checks the bag's completeness and fixity: every manifest entry
// must exist on disk with a matching digest, every payload file must be
// listed in every manifest, and Payload-Oxum (when present) must match the
// payload. Returns nil when the bag is valid, a *ValidationError otherwise.
func (b *Bag) Validate() error {
	var problems []string

	// Payload files actually on disk, relative forward-slash paths.
	onDisk := make(map[string]int64)
	dataDir := filepath.Join(b.path, DataDirName)
	err := filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.path, path)
		if err != nil {
			return err
		}
		onDisk[filepath.ToSlash(rel)] = info.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("walk payload: %w", err)
	}

	for _, m := range b.manifests {
		for rel, want := range m.entries {
			if _, ok := onDisk[rel]; !ok {
				problems = append(problems,
					fmt.Sprintf("%s exists in manifest but was not found on filesystem", rel))
				continue
			}
			sums, _, err := checksumFile(filepath.Join(b.path, filepath.FromSlash(rel)), []string{m.algorithm})
			if err != nil {
				return fmt.Errorf("checksum %s: %w", rel, err)
			}
			if got := sums[m.algorithm]; got != want {
				problems = append(problems,
					fmt.Sprintf("%s %s checksum mismatch: expected %q found %q", rel, m.algorithm, want, got))
			}
		}
		for rel := range onDisk {
			if _, ok := m.entries[rel]; !ok {
				problems = append(problems,
					fmt.Sprintf("%s exists on filesystem but is not in the %s manifest", rel, m.algorithm))
			}
		}
	}

	if want := b.info.Get(TagPayloadOxum); want != "" {
		var totalBytes int64
		for _, size := range onDisk {
			totalBytes += size
		}
		got := fmt.Sprintf("%d.%d", totalBytes, len(onDisk))
		if got != want {
			problems = append(problems,
				fmt.Sprintf("Payload-Oxum validation failed. Expected %s but found %s", want, got))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Path: b.path, Problems: problems}
	}
	return nil
}
