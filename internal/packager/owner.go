package packager

// OwnerLookup resolves the account name that owns a path. One implementation
// per platform, selected at build time.
type OwnerLookup interface {
	Owner(path string) (string, error)
}
