// Package reconcile sweeps the archive and the ledger against each other.
// The sweep runs in both directions: every filed bag is revalidated and
// matched to its ledger row, and every ledger row must correspond to a bag
// on disk. Every check becomes an immutable validation outcome.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bagvault/internal/ledger"
	"bagvault/internal/runlock"
	"bagvault/pkg/bagit"
)

// Reconciler owns one sweep over the archive. The transfers ledger and the
// validation ledger are distinct stores because the configuration allows
// sweep results to be kept in a separate database file; pointing both at
// the same store is fine and is the single-database default.
type Reconciler struct {
	ArchiveDir  string
	Transfers   *ledger.Store // committed transfers, read only
	Validations *ledger.Store // sweep actions and outcomes, written here
	Log         zerolog.Logger
}

// Run performs one full sweep and returns the id of its validation action.
// The archive lock is held for the whole sweep so an ingest run cannot file
// new transfers underneath it; a held lock aborts, never waits.
func (r *Reconciler) Run(ctx context.Context) (uint, error) {
	fi, err := os.Stat(r.ArchiveDir)
	if err != nil || !fi.IsDir() {
		return 0, fmt.Errorf("required directory missing: %s", r.ArchiveDir)
	}

	lock, err := runlock.Acquire(r.ArchiveDir)
	if errors.Is(err, runlock.ErrLocked) {
		r.Log.Warn().Str("dir", r.ArchiveDir).Msg("another run holds the archive, aborting")
		return 0, err
	}
	if err != nil {
		return 0, fmt.Errorf("acquire run lock: %w", err)
	}
	defer lock.Release()

	actionID, err := r.Validations.StartValidationAction(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	r.Log.Info().Uint("action", actionID).Msg("validation sweep started")

	visited, err := r.sweepFilesystem(ctx, actionID)
	if err != nil {
		return actionID, err
	}
	if err := r.sweepLedger(ctx, actionID, visited); err != nil {
		return actionID, err
	}

	if err := r.Validations.EndValidationAction(ctx, actionID, time.Now()); err != nil {
		return actionID, err
	}

	action, err := r.Validations.GetValidationAction(ctx, actionID)
	if err != nil {
		return actionID, err
	}
	r.Log.Info().
		Uint("action", actionID).
		Int("validated", action.CountBagsValidated).
		Int("errors", action.CountBagsWithErrors).
		Msg("validation sweep finished")
	return actionID, nil
}

// sweepFilesystem walks {collection}/{slot} directories, validates each bag
// in place and matches it to the ledger. Plain files at either level are
// skipped; the archive layout only ever nests directories. Returns the set
// of outcome folder titles seen on disk.
func (r *Reconciler) sweepFilesystem(ctx context.Context, actionID uint) ([]string, error) {
	collections, err := os.ReadDir(r.ArchiveDir)
	if err != nil {
		return nil, err
	}

	var visited []string
	for _, coll := range collections {
		if !coll.IsDir() {
			continue
		}
		slots, err := os.ReadDir(filepath.Join(r.ArchiveDir, coll.Name()))
		if err != nil {
			return visited, err
		}
		sort.Slice(slots, func(i, j int) bool { return slots[i].Name() < slots[j].Name() })

		for _, slot := range slots {
			if !slot.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return visited, err
			}
			title := coll.Name() + "/" + slot.Name()
			visited = append(visited, title)
			if err := r.checkSlot(ctx, actionID, title); err != nil {
				return visited, err
			}
		}
	}
	return visited, nil
}

// checkSlot validates one filed bag and reconciles it against the ledger
// row(s) filed at the same relative path.
func (r *Reconciler) checkSlot(ctx context.Context, actionID uint, title string) error {
	start := time.Now()
	path := filepath.Join(r.ArchiveDir, filepath.FromSlash(title))

	var problems []string
	var uuids string

	bag, err := bagit.Open(path)
	if err != nil {
		problems = append(problems, err.Error())
	} else {
		uuids = strings.Join(bag.Info()[bagit.TagInternalSenderID], ";")
		if err := bag.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	rows, err := r.Transfers.TransfersByOutcomeTitle(ctx, title)
	if err != nil {
		return err
	}
	switch len(rows) {
	case 0:
		problems = append(problems, "Bag path not found in transfers database.")
	case 1:
		if rows[0].BagUUID != uuids {
			problems = append(problems,
				fmt.Sprintf("UUID conflict in database for transfer %d: expected %q found %q.",
					rows[0].TransferID, rows[0].BagUUID, uuids))
		}
	default:
		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = fmt.Sprint(row.TransferID)
		}
		problems = append(problems,
			fmt.Sprintf("Too many transfers in database: %s.", strings.Join(ids, ", ")))
	}

	// BagPath is archive-relative, matching the ledger's own outcome folder
	// title convention.
	outcome := &ledger.ValidationOutcome{
		ValidationActionID: actionID,
		BagUUID:            uuids,
		Outcome:            ledger.OutcomePass,
		BagPath:            title,
		StartTime:          start,
		EndTime:            time.Now(),
	}
	if len(problems) > 0 {
		outcome.Outcome = ledger.OutcomeFail
		outcome.Errors = strings.Join(problems, "\n")
		r.Log.Error().Str("bag", title).Str("errors", outcome.Errors).Msg("validation failed")
	} else {
		r.Log.Info().Str("bag", title).Msg("validated")
	}
	return r.Validations.InsertValidationOutcome(ctx, outcome)
}

// sweepLedger synthesizes a failing outcome for every ledger row whose bag
// the filesystem walk never saw.
func (r *Reconciler) sweepLedger(ctx context.Context, actionID uint, visited []string) error {
	orphans, err := r.Transfers.TransfersNotVisited(ctx, visited)
	if err != nil {
		return err
	}
	for _, row := range orphans {
		now := time.Now()
		outcome := &ledger.ValidationOutcome{
			ValidationActionID: actionID,
			BagUUID:            row.BagUUID,
			Outcome:            ledger.OutcomeFail,
			Errors: fmt.Sprintf(
				"Transfer %d in database but not found on system. Submitted on %s by %s in folder %s.",
				row.TransferID, row.TransferDate, row.ContactName, row.OriginalFolderTitle),
			BagPath:   row.OutcomeFolderTitle,
			StartTime: now,
			EndTime:   now,
		}
		r.Log.Error().
			Uint("transfer_id", row.TransferID).
			Str("expected", row.OutcomeFolderTitle).
			Msg("transfer recorded in ledger but missing on disk")
		if err := r.Validations.InsertValidationOutcome(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}
