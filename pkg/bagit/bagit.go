// Package bagit implements the subset of the BagIt packaging convention the
// ingest pipeline depends on: building a bag from a payload directory,
// opening and re-saving an existing bag's metadata, and validating a bag's
// completeness and fixity.
package bagit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DeclarationName marks a directory as a bag.
	DeclarationName = "bagit.txt"
	// InfoName holds the bag's key/value metadata.
	InfoName = "bag-info.txt"
	// DataDirName is the payload directory inside a bag.
	DataDirName = "data"

	declarationText = "BagIt-Version: 0.97\nTag-File-Character-Encoding: UTF-8\n"
)

// Bag is an on-disk package: a payload under data/, one checksum manifest
// per algorithm, and a bag-info.txt metadata file.
type Bag struct {
	path      string
	info      Info
	manifests []*manifest
}

// Path returns the bag's root directory.
func (b *Bag) Path() string { return b.path }

// Info returns the bag's metadata map. Mutations are persisted by Save.
func (b *Bag) Info() Info { return b.info }

// IsBag reports whether dir contains a bag declaration.
func IsBag(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, DeclarationName))
	return err == nil && fi.Mode().IsRegular()
}

// Open loads an existing bag's metadata and manifests without verifying
// payload fixity; call Validate for that.
func Open(dir string) (*Bag, error) {
	if !IsBag(dir) {
		return nil, fmt.Errorf("expected bagit.txt does not exist: %s", filepath.Join(dir, DeclarationName))
	}

	info := make(Info)
	infoPath := filepath.Join(dir, InfoName)
	if _, err := os.Stat(infoPath); err == nil {
		info, err = readInfo(infoPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", InfoName, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var manifests []*manifest
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "manifest-") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		algorithm := strings.TrimSuffix(strings.TrimPrefix(name, "manifest-"), ".txt")
		m, err := readManifest(filepath.Join(dir, name), algorithm)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("no manifests found in %s", dir)
	}

	return &Bag{path: dir, info: info, manifests: manifests}, nil
}

// Make turns dir into a bag in place: the payload is moved into data/,
// manifests are written for each requested algorithm, and info becomes the
// bag's metadata. Payload-Oxum and Bagging-Date are filled in.
func Make(dir string, info Info, algos []string) (*Bag, error) {
	if len(algos) == 0 {
		algos = DefaultAlgorithms
	}
	for _, a := range algos {
		if _, ok := algorithms[a]; !ok {
			return nil, fmt.Errorf("unsupported checksum algorithm %q", a)
		}
	}
	if IsBag(dir) {
		return nil, fmt.Errorf("%s is already a bag", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Join(dir, DataDirName)
	if err := os.Mkdir(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create payload directory: %w", err)
	}
	for _, e := range entries {
		src := filepath.Join(dir, e.Name())
		if err := os.Rename(src, filepath.Join(dataDir, e.Name())); err != nil {
			return nil, fmt.Errorf("move payload %s: %w", e.Name(), err)
		}
	}

	manifests := make([]*manifest, len(algos))
	for i, a := range algos {
		manifests[i] = &manifest{algorithm: a, entries: make(map[string]string)}
	}

	var totalBytes int64
	var fileCount int64
	err = filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		sums, n, err := checksumFile(path, algos)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for i, a := range algos {
			manifests[i].entries[rel] = sums[a]
		}
		totalBytes += n
		fileCount++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checksum payload: %w", err)
	}

	for _, m := range manifests {
		if err := writeManifest(filepath.Join(dir, ManifestName(m.algorithm)), m); err != nil {
			return nil, fmt.Errorf("write manifest: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, DeclarationName), []byte(declarationText), 0o644); err != nil {
		return nil, err
	}

	if info == nil {
		info = make(Info)
	} else {
		info = info.Clone()
	}
	info.Set(TagPayloadOxum, fmt.Sprintf("%d.%d", totalBytes, fileCount))
	if info.Get(TagBaggingDate) == "" {
		info.Set(TagBaggingDate, time.Now().Format("2006-01-02"))
	}

	b := &Bag{path: dir, info: info, manifests: manifests}
	if err := b.Save(); err != nil {
		return nil, err
	}
	return b, nil
}

// Save rewrites bag-info.txt from the in-memory metadata. The payload and
// manifests are untouched; fixity is only recomputed when the payload
// changes, which Save never does.
func (b *Bag) Save() error {
	f, err := os.OpenFile(filepath.Join(b.path, InfoName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeInfo(f, b.info); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
