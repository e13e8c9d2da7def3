package bagit

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// algorithms maps the checksum names accepted in configuration to their
// constructors.
var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// DefaultAlgorithms is used when no checksum list is configured.
var DefaultAlgorithms = []string{"md5", "sha256"}

// FilterAlgorithms keeps the supported names from a comma-separated list,
// falling back to DefaultAlgorithms when nothing supported remains.
func FilterAlgorithms(csv string) []string {
	var out []string
	for _, name := range strings.Split(csv, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := algorithms[name]; ok {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultAlgorithms...)
	}
	return out
}

// ManifestName returns the canonical manifest filename for an algorithm,
// e.g. "manifest-sha256.txt".
func ManifestName(algorithm string) string {
	return fmt.Sprintf("manifest-%s.txt", algorithm)
}

// manifest maps payload-relative paths (forward slashes, "data/" prefixed)
// to hex digests under one algorithm.
type manifest struct {
	algorithm string
	entries   map[string]string
}

func checksumFile(path string, algos []string) (map[string]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	hashes := make([]hash.Hash, len(algos))
	writers := make([]io.Writer, len(algos))
	for i, a := range algos {
		hashes[i] = algorithms[a]()
		writers[i] = hashes[i]
	}

	n, err := io.Copy(io.MultiWriter(writers...), f)
	if err != nil {
		return nil, 0, err
	}

	sums := make(map[string]string, len(algos))
	for i, a := range algos {
		sums[a] = hex.EncodeToString(hashes[i].Sum(nil))
	}
	return sums, n, nil
}

// Line format: `<hex> <space> <space> <path>`, matching the convention the
// rest of the tooling expects.
func readManifest(path, algorithm string) (*manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := make(map[string]string)
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 || fields[1] != "" {
			return nil, fmt.Errorf("malformed manifest line %q in %s", line, path)
		}
		entries[fields[2]] = strings.ToLower(fields[0])
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return &manifest{algorithm: algorithm, entries: entries}, nil
}

func writeManifest(path string, m *manifest) error {
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if _, err := fmt.Fprintf(f, "%s  %s\n", m.entries[p], p); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// ManifestHash computes the sha-256 digest of a bag's sha-256 manifest file.
// The digest identifies the payload for duplicate detection: two bags with
// byte-identical manifests carry the same payload.
func ManifestHash(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName("sha256")))
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
