package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"bagvault/internal/idparse"
	"bagvault/internal/ledger"
	"bagvault/internal/packager"
	"bagvault/internal/runlock"
	"bagvault/pkg/bagit"
)

type fixture struct {
	orch     *Orchestrator
	transfer string
	archive  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	transfer := filepath.Join(root, "transfer")
	archive := filepath.Join(root, "archive")
	for _, d := range []string{transfer, archive} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	store, err := ledger.Open(context.Background(), filepath.Join(root, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	parser, err := idparse.New(idparse.DefaultGrammar())
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{
		orch: &Orchestrator{
			TransferDir: transfer,
			ArchiveDir:  archive,
			Store:       store,
			Parser:      parser,
			Raw: &packager.RawFolder{
				Parser:             parser,
				Algorithms:         []string{"sha256"},
				SourceOrganization: "State Library",
			},
			Log: zerolog.Nop(),
		},
		transfer: transfer,
		archive:  archive,
	}
}

// submit stages a payload folder plus its ready sentinel.
func (f *fixture) submit(t *testing.T, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(f.transfer, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(dir, rel), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(dir+".ok", nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) errorSentinel(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.transfer, name+".error"))
	if err != nil {
		t.Fatalf("error sentinel for %s: %v", name, err)
	}
	return string(b)
}

func TestRunCommitsTransfer(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "RA_2024_01_records", map[string]string{"report.txt": "annual report"})

	sum, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Found != 1 || sum.Committed != 1 || sum.Errored != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	dest := filepath.Join(f.archive, "RA-2024-01", "t1")
	bag, err := bagit.Open(dest)
	if err != nil {
		t.Fatalf("archived bag: %v", err)
	}
	if err := bag.Validate(); err != nil {
		t.Fatalf("archived bag invalid: %v", err)
	}

	count, err := f.orch.Store.CountForCollection(context.Background(), "RA-2024-01")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("collection count = %d, want 1", count)
	}

	rows, err := f.orch.Store.TransfersByOutcomeTitle(context.Background(), "RA-2024-01/t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("transfer rows = %d, want 1", len(rows))
	}
	if rows[0].OriginalFolderTitle != "RA_2024_01_records" {
		t.Fatalf("original folder title = %q", rows[0].OriginalFolderTitle)
	}
	if rows[0].BagUUID == "" || rows[0].PayloadOxum == "" || rows[0].ManifestSHA256Hash == "" {
		t.Fatalf("incomplete transfer row: %+v", rows[0])
	}

	if _, err := os.Stat(filepath.Join(f.transfer, "RA_2024_01_records")); !os.IsNotExist(err) {
		t.Fatal("source payload still present after commit")
	}
	if _, err := os.Stat(filepath.Join(f.transfer, "RA_2024_01_records.ok")); !os.IsNotExist(err) {
		t.Fatal("sentinel still present after commit")
	}
}

func TestRunRejectsDuplicate(t *testing.T) {
	f := newFixture(t)
	payload := map[string]string{"report.txt": "annual report"}

	f.submit(t, "RA_2024_01_records", payload)
	if _, err := f.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Same payload resubmitted under a different title.
	f.submit(t, "RA_2024_01_resubmitted", payload)
	sum, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Committed != 0 || sum.Errored != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if body := f.errorSentinel(t, "RA_2024_01_resubmitted"); !strings.Contains(body, "Folder is a duplicate.") {
		t.Fatalf("error sentinel = %q", body)
	}
	if _, err := os.Stat(filepath.Join(f.archive, "RA-2024-01", "t2")); !os.IsNotExist(err) {
		t.Fatal("duplicate was filed into a new slot")
	}
}

func TestRunMintsNextSlot(t *testing.T) {
	f := newFixture(t)

	f.submit(t, "RA_2024_01_part1", map[string]string{"a.txt": "first accrual"})
	if _, err := f.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.submit(t, "RA_2024_01_part2", map[string]string{"b.txt": "second accrual"})
	if _, err := f.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, slot := range []string{"t1", "t2"} {
		if !bagit.IsBag(filepath.Join(f.archive, "RA-2024-01", slot)) {
			t.Fatalf("slot %s missing", slot)
		}
	}
	count, err := f.orch.Store.CountForCollection(context.Background(), "RA-2024-01")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("collection count = %d, want 2", count)
	}
}

func TestRunDestinationCollision(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "RA_2024_01_records", map[string]string{"report.txt": "annual report"})

	taken := filepath.Join(f.archive, "RA-2024-01", "t1")
	if err := os.MkdirAll(taken, 0o755); err != nil {
		t.Fatal(err)
	}

	sum, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Errored != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if body := f.errorSentinel(t, "RA_2024_01_records"); !strings.Contains(body, "already exists") {
		t.Fatalf("error sentinel = %q", body)
	}
}

func TestRunAbortsWhenLocked(t *testing.T) {
	f := newFixture(t)
	lock, err := runlock.Acquire(f.transfer)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	if _, err := f.orch.Run(context.Background()); !errors.Is(err, runlock.ErrLocked) {
		t.Fatalf("Run() error = %v, want ErrLocked", err)
	}
}

func TestRunRequiresDirectories(t *testing.T) {
	f := newFixture(t)
	if err := os.RemoveAll(f.archive); err != nil {
		t.Fatal(err)
	}
	if _, err := f.orch.Run(context.Background()); err == nil {
		t.Fatal("Run() succeeded with missing archive directory")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.submit(t, "RA_2024_01_good", map[string]string{"a.txt": "content"})
	// Ready sentinel with no payload folder at all.
	if err := os.WriteFile(filepath.Join(f.transfer, "RA_2024_02_missing.ok"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	sum, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Found != 2 || sum.Committed != 1 || sum.Errored != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if !bagit.IsBag(filepath.Join(f.archive, "RA-2024-01", "t1")) {
		t.Fatal("valid transfer was not committed")
	}
	if body := f.errorSentinel(t, "RA_2024_02_missing"); !strings.Contains(body, "Folder does not exist.") {
		t.Fatalf("error sentinel = %q", body)
	}
}

func TestRunTransferDirWithGlobCharacters(t *testing.T) {
	f := newFixture(t)
	tricky := filepath.Join(filepath.Dir(f.transfer), "in[box]?")
	if err := os.Rename(f.transfer, tricky); err != nil {
		t.Fatal(err)
	}
	f.transfer = tricky
	f.orch.TransferDir = tricky

	f.submit(t, "RA_2024_01_records", map[string]string{"report.txt": "annual report"})
	sum, err := f.orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Found != 1 || sum.Committed != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if !bagit.IsBag(filepath.Join(f.archive, "RA-2024-01", "t1")) {
		t.Fatal("transfer not committed from directory with pattern characters")
	}
}

func TestRunMovesPayloadToAppraisal(t *testing.T) {
	f := newFixture(t)
	appraisal := filepath.Join(filepath.Dir(f.transfer), "appraisal")
	if err := os.MkdirAll(appraisal, 0o755); err != nil {
		t.Fatal(err)
	}
	f.orch.AppraisalDir = appraisal

	f.submit(t, "RA_2024_01_records", map[string]string{"report.txt": "annual report"})
	if _, err := f.orch.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !bagit.IsBag(filepath.Join(appraisal, "RA_2024_01_records")) {
		t.Fatal("payload not retained in appraisal area")
	}
}
