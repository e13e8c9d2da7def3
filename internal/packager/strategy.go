// Package packager builds bag metadata and packages for the two transfer
// shapes: a raw payload folder, and a folder that already is a bag.
package packager

import (
	"fmt"
	"path/filepath"

	"bagvault/internal/idparse"
	"bagvault/pkg/bagit"
)

// Strategy is the packaging contract a trigger file drives. The variant is
// chosen once, when the payload is first inspected, and never changes for
// the lifetime of a trigger file.
type Strategy interface {
	// BuildMetadata derives the bag metadata for the payload directory.
	BuildMetadata(dir string) (bagit.Info, error)
	// MakePackage turns the payload directory into a bag carrying info.
	MakePackage(dir string, info bagit.Info) (*bagit.Bag, error)
}

// Select returns ExistingBag when the payload already carries a bag
// declaration, raw otherwise. The upgrade is one-way.
func Select(dir string, raw *RawFolder) Strategy {
	if bagit.IsBag(dir) {
		return &ExistingBag{Algorithms: raw.Algorithms}
	}
	return raw
}

// RawFolder packages a plain payload folder: description from the folder
// name, contact from the filesystem owner, identifier candidates parsed out
// of the folder name.
type RawFolder struct {
	Parser             *idparse.Parser
	Algorithms         []string
	Owner              OwnerLookup
	SourceOrganization string
}

// BuildMetadata derives metadata from the folder itself. Owner lookup
// failure is never fatal; the contact is simply left unset.
func (r *RawFolder) BuildMetadata(dir string) (bagit.Info, error) {
	info := make(bagit.Info)

	base := filepath.Base(dir)
	info.Set(bagit.TagExternalDesc, base)

	if r.SourceOrganization != "" {
		info.Set(bagit.TagSourceOrganization, r.SourceOrganization)
	}

	if r.Owner != nil {
		if owner, err := r.Owner.Owner(filepath.Dir(dir)); err == nil && owner != "" {
			info.Set(bagit.TagContactName, owner)
		}
	}

	if ids, ok := r.Parser.ExtractAll(base, true); ok {
		info.Set(bagit.TagExternalIdentifier, ids...)
	}

	return info, nil
}

// MakePackage builds a new bag in place with the configured checksum
// algorithms.
func (r *RawFolder) MakePackage(dir string, info bagit.Info) (*bagit.Bag, error) {
	bag, err := bagit.Make(dir, info, r.Algorithms)
	if err != nil {
		return nil, fmt.Errorf("make bag at %s: %w", dir, err)
	}
	return bag, nil
}

// ExistingBag trusts prior packaging: metadata is read verbatim, and
// MakePackage only overlays the supplied keys and re-saves.
type ExistingBag struct {
	Algorithms []string
}

// BuildMetadata returns the bag's existing info map.
func (e *ExistingBag) BuildMetadata(dir string) (bagit.Info, error) {
	bag, err := bagit.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open existing bag at %s: %w", dir, err)
	}
	return bag.Info(), nil
}

// MakePackage re-opens the bag, overwrites each supplied key and saves. The
// payload is untouched, so fixity is not recomputed.
func (e *ExistingBag) MakePackage(dir string, info bagit.Info) (*bagit.Bag, error) {
	bag, err := bagit.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open existing bag at %s: %w", dir, err)
	}
	for key, values := range info {
		bag.Info().Set(key, values...)
	}
	if err := bag.Save(); err != nil {
		return nil, fmt.Errorf("save bag metadata: %w", err)
	}
	return bag, nil
}
