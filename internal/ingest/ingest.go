// Package ingest drives one pipeline run: enumerate ready sentinels in the
// transfer area, package and verify each submission, file it into its
// destination slot and commit it to the ledger. Each transfer is isolated;
// one failure never stops the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bagvault/internal/copyutil"
	"bagvault/internal/idparse"
	"bagvault/internal/ledger"
	"bagvault/internal/packager"
	"bagvault/internal/runlock"
	"bagvault/internal/trigger"
	"bagvault/pkg/bagit"
)

// Orchestrator owns one ingest run over the transfer area.
type Orchestrator struct {
	TransferDir  string
	ArchiveDir   string
	AppraisalDir string // optional; empty means delete processed payloads

	Store  *ledger.Store
	Parser *idparse.Parser
	Raw    *packager.RawFolder
	Log    zerolog.Logger
}

// Summary counts the outcomes of one run.
type Summary struct {
	Found     int
	Committed int
	Errored   int
}

// Run executes one ingest pass. It aborts before touching anything when the
// transfer or archive directory is missing, or when another run holds the
// transfer-area lock; it never waits for the lock.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	for _, dir := range []string{o.TransferDir, o.ArchiveDir} {
		fi, err := os.Stat(dir)
		if err != nil || !fi.IsDir() {
			return sum, fmt.Errorf("required directory missing: %s", dir)
		}
	}

	lock, err := runlock.Acquire(o.TransferDir)
	if errors.Is(err, runlock.ErrLocked) {
		o.Log.Warn().Str("dir", o.TransferDir).Msg("another run holds the transfer area, aborting")
		return sum, err
	}
	if err != nil {
		return sum, fmt.Errorf("acquire run lock: %w", err)
	}
	defer lock.Release()

	// Plain suffix filtering: the transfer directory is operator-chosen and
	// may contain characters a glob pattern would misinterpret.
	entries, err := os.ReadDir(o.TransferDir)
	if err != nil {
		return sum, err
	}
	var sentinels []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), string(trigger.StatusReady)) {
			continue
		}
		sentinels = append(sentinels, filepath.Join(o.TransferDir, e.Name()))
	}
	sum.Found = len(sentinels)
	o.Log.Info().Int("pending", len(sentinels)).Msg("ingest run started")

	for _, sentinel := range sentinels {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		tf, err := trigger.New(sentinel, o.Parser, o.Raw, o.Log)
		if err != nil {
			o.Log.Error().Err(err).Str("sentinel", sentinel).Msg("skipping sentinel")
			sum.Errored++
			continue
		}
		if !tf.Validate() {
			sum.Errored++
			continue
		}
		if o.processTransfer(ctx, tf) {
			sum.Committed++
		} else {
			sum.Errored++
		}
	}

	o.Log.Info().
		Int("found", sum.Found).
		Int("committed", sum.Committed).
		Int("errored", sum.Errored).
		Msg("ingest run finished")
	return sum, nil
}

// processTransfer takes one validated submission through packaging, fixity
// verification, deduplication, filing and ledger commit. Any failure parks
// the submission in Error state and reports false.
func (o *Orchestrator) processTransfer(ctx context.Context, tf *trigger.TriggerFile) bool {
	start := time.Now()
	log := o.Log.With().Str("transfer", tf.Name()).Logger()

	bag, err := tf.MakePackage()
	if err != nil {
		tf.SetError(fmt.Sprintf("Error creating package: %v", err))
		return false
	}
	if err := bag.Validate(); err != nil {
		tf.SetError(fmt.Sprintf("Package did not validate: %v", err))
		return false
	}

	info := bag.Info()
	primary := idparse.GuessPrimaryID(info[bagit.TagExternalIdentifier])
	if primary == "" {
		tf.SetError("No primary collection identifier could be determined.")
		return false
	}

	hash, err := bagit.ManifestHash(bag.Path())
	if err != nil {
		tf.SetError(fmt.Sprintf("Error hashing manifest: %v", err))
		return false
	}
	dup, err := o.Store.FindTransferByManifestHash(ctx, hash)
	if err != nil {
		tf.SetError(fmt.Sprintf("Error querying ledger: %v", err))
		return false
	}
	if dup != nil {
		tf.SetError("Folder is a duplicate.")
		log.Warn().
			Uint("transfer_id", dup.TransferID).
			Str("original", dup.OriginalFolderTitle).
			Msg("manifest hash already committed")
		return false
	}

	count, err := o.Store.CountForCollection(ctx, primary)
	if err != nil {
		tf.SetError(fmt.Sprintf("Error reading collection counter: %v", err))
		return false
	}
	slot := fmt.Sprintf("t%d", count+1)
	outcomeTitle := filepath.ToSlash(filepath.Join(primary, slot))
	dest := filepath.Join(o.ArchiveDir, primary, slot)

	// The counter never decrements, so an existing slot means manual
	// interference with the archive. Refuse rather than overwrite.
	if _, err := os.Stat(dest); err == nil {
		tf.SetError(fmt.Sprintf("Destination %s already exists.", dest))
		return false
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		tf.SetError(fmt.Sprintf("Error creating destination: %v", err))
		return false
	}

	if err := copyutil.CopyTree(ctx, log, bag.Path(), dest); err != nil {
		tf.SetError(fmt.Sprintf("Error copying to destination: %v", err))
		return false
	}

	copied, err := bagit.Open(dest)
	if err == nil {
		err = copied.Validate()
	}
	if err != nil {
		// A broken copy must not sit in the archive.
		if rmErr := os.RemoveAll(dest); rmErr != nil {
			log.Error().Err(rmErr).Str("dest", dest).Msg("could not remove invalid copy")
		}
		tf.SetError(fmt.Sprintf("Transfer copy did not validate at destination: %v", err))
		return false
	}

	rec := &ledger.Transfer{
		CollectionIdentifier: primary,
		BagUUID:              info.Get(bagit.TagInternalSenderID),
		TransferDate:         time.Now().Format("2006-01-02"),
		BaggingDate:          info.Get(bagit.TagBaggingDate),
		PayloadOxum:          info.Get(bagit.TagPayloadOxum),
		ManifestSHA256Hash:   hash,
		StartTime:            start,
		EndTime:              time.Now(),
		OriginalFolderTitle:  tf.Name(),
		OutcomeFolderTitle:   outcomeTitle,
		ContactName:          info.Get(bagit.TagContactName),
		SourceOrganization:   info.Get(bagit.TagSourceOrganization),
	}
	if err := o.Store.InsertTransfer(ctx, rec); err != nil {
		// The copy stays: the archive holds data the ledger does not know
		// about, and only an operator can reconcile that.
		tf.SetError(fmt.Sprintf(
			"DATABASE WRITE ERROR -- transfer was copied to %s but could not be recorded, manual reconciliation required: %v",
			dest, err))
		return false
	}

	if err := tf.Cleanup(o.AppraisalDir); err != nil {
		log.Error().Err(err).Msg("cleanup failed after commit")
	}
	log.Info().
		Str("collection", primary).
		Str("slot", slot).
		Str("uuid", rec.BagUUID).
		Msg("transfer committed")
	return true
}
