package bagit

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func makeTestBag(t *testing.T) *Bag {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "RA-9999-99")
	writeFile(t, filepath.Join(dir, "file.txt"), "Text in file.")
	writeFile(t, filepath.Join(dir, "nested", "more.txt"), "More text.")

	info := make(Info)
	info.Set(TagExternalIdentifier, "RA-9999-99")
	info.Set(TagContactName, "sbourke")
	bag, err := Make(dir, info, []string{"md5", "sha256"})
	if err != nil {
		t.Fatalf("Make() error = %v", err)
	}
	return bag
}

func TestMakeMovesPayloadIntoData(t *testing.T) {
	bag := makeTestBag(t)

	if _, err := os.Stat(filepath.Join(bag.Path(), DataDirName, "file.txt")); err != nil {
		t.Fatalf("payload not moved into data/: %v", err)
	}
	if !IsBag(bag.Path()) {
		t.Fatal("IsBag() = false after Make")
	}
	if got := bag.Info().Get(TagPayloadOxum); got != "23.2" {
		t.Fatalf("Payload-Oxum = %q, want 23.2", got)
	}
}

func TestOpenRoundTrip(t *testing.T) {
	bag := makeTestBag(t)

	reopened, err := Open(bag.Path())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := reopened.Info().Get(TagExternalIdentifier); got != "RA-9999-99" {
		t.Fatalf("External-Identifier = %q", got)
	}
	if err := reopened.Validate(); err != nil {
		t.Fatalf("Validate() on fresh bag: %v", err)
	}
}

func TestOpenNotABag(t *testing.T) {
	_, err := Open(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "bagit.txt") {
		t.Fatalf("Open() error = %v, want bagit.txt complaint", err)
	}
}

func TestSavePersistsInfoChanges(t *testing.T) {
	bag := makeTestBag(t)
	bag.Info().Set(TagInternalSenderID, "ce2c5343-0f5c-45e1-9cd1-5e10e748efef")
	if err := bag.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reopened, err := Open(bag.Path())
	if err != nil {
		t.Fatal(err)
	}
	if got := reopened.Info().Get(TagInternalSenderID); got != "ce2c5343-0f5c-45e1-9cd1-5e10e748efef" {
		t.Fatalf("Internal-Sender-Identifier = %q after save", got)
	}
}

func TestValidateDetectsMissingFile(t *testing.T) {
	bag := makeTestBag(t)
	if err := os.Remove(filepath.Join(bag.Path(), DataDirName, "file.txt")); err != nil {
		t.Fatal(err)
	}

	err := bag.Validate()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	found := false
	for _, p := range verr.Problems {
		if strings.Contains(p, "exists in manifest but was not found on filesystem") {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing-file problem not reported: %v", verr.Problems)
	}
}

func TestValidateDetectsTamperedFile(t *testing.T) {
	bag := makeTestBag(t)
	writeFile(t, filepath.Join(bag.Path(), DataDirName, "file.txt"), "Tampered.")

	err := bag.Validate()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	found := false
	for _, p := range verr.Problems {
		if strings.Contains(p, "checksum mismatch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("checksum problem not reported: %v", verr.Problems)
	}
}

func TestValidateDetectsUnlistedFile(t *testing.T) {
	bag := makeTestBag(t)
	writeFile(t, filepath.Join(bag.Path(), DataDirName, "extra.txt"), "Unlisted.")

	err := bag.Validate()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	found := false
	for _, p := range verr.Problems {
		if strings.Contains(p, "exists on filesystem but is not in the") {
			found = true
		}
	}
	if !found {
		t.Fatalf("unlisted-file problem not reported: %v", verr.Problems)
	}
}

func TestManifestHashStableAcrossCopies(t *testing.T) {
	bag := makeTestBag(t)
	h1, err := ManifestHash(bag.Path())
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ManifestHash(bag.Path())
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 || len(h1) != 64 {
		t.Fatalf("ManifestHash unstable or malformed: %q vs %q", h1, h2)
	}
}

func TestFilterAlgorithms(t *testing.T) {
	tests := []struct {
		csv  string
		want []string
	}{
		{"md5,sha256,sha512", []string{"md5", "sha256", "sha512"}},
		{"", []string{"md5", "sha256"}},
		{"sha512", []string{"sha512"}},
		{"exception", []string{"md5", "sha256"}},
		{"nonsense,md5", []string{"md5"}},
	}
	for _, tt := range tests {
		t.Run(tt.csv, func(t *testing.T) {
			if got := FilterAlgorithms(tt.csv); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilterAlgorithms(%q) = %v, want %v", tt.csv, got, tt.want)
			}
		})
	}
}
