// Package ledger is the relational record of committed transfers and
// validation sweeps, stored in an embedded sqlite database.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrCorruptCounter reports more than one counter row for one collection
// identifier, which the schema should make impossible.
var ErrCorruptCounter = errors.New("more than one counter row for collection identifier")

// Store wraps a sqlite-backed GORM session for one ledger file.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the ledger at path and runs the idempotent
// schema migration.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&Collection{},
		&Transfer{},
		&ValidationAction{},
		&ValidationOutcome{},
	); err != nil {
		return nil, fmt.Errorf("migrate ledger %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying sql.DB resources.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertTransfer writes the transfer row and bumps the matching collection
// counter as one transaction. If it fails the caller must treat the transfer
// as uncommitted.
func (s *Store) InsertTransfer(ctx context.Context, rec *Transfer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("insert transfer: %w", err)
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection_identifier"}},
			DoUpdates: clause.Assignments(map[string]any{"count": gorm.Expr("count + 1")}),
		}).Create(&Collection{
			CollectionIdentifier: rec.CollectionIdentifier,
			Count:                1,
		}).Error
		if err != nil {
			return fmt.Errorf("upsert collection counter: %w", err)
		}
		return nil
	})
}

// CountForCollection returns the number of transfers committed for the
// identifier, 0 when none. More than one counter row is ledger corruption.
func (s *Store) CountForCollection(ctx context.Context, id string) (int, error) {
	var rows []Collection
	if err := s.db.WithContext(ctx).Where("collection_identifier = ?", id).Find(&rows).Error; err != nil {
		return 0, err
	}
	switch len(rows) {
	case 0:
		return 0, nil
	case 1:
		return rows[0].Count, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrCorruptCounter, id)
	}
}

// FindTransferByManifestHash returns the committed transfer carrying the
// manifest hash, or nil when the hash is unseen.
func (s *Store) FindTransferByManifestHash(ctx context.Context, hash string) (*Transfer, error) {
	var rec Transfer
	err := s.db.WithContext(ctx).Where("manifest_sha256_hash = ?", hash).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// TransfersByOutcomeTitle returns every transfer filed at the given
// destination-relative folder title.
func (s *Store) TransfersByOutcomeTitle(ctx context.Context, title string) ([]Transfer, error) {
	var rows []Transfer
	err := s.db.WithContext(ctx).Where("outcome_folder_title = ?", title).Find(&rows).Error
	return rows, err
}

// TransfersNotVisited returns transfers whose outcome folder title is absent
// from the visited set: rows recorded in the ledger that a sweep never saw
// on the filesystem.
func (s *Store) TransfersNotVisited(ctx context.Context, visited []string) ([]Transfer, error) {
	var rows []Transfer
	q := s.db.WithContext(ctx)
	if len(visited) > 0 {
		q = q.Where("outcome_folder_title NOT IN ?", visited)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// StartValidationAction opens a sweep in Running status and returns its id.
func (s *Store) StartValidationAction(ctx context.Context, start time.Time) (uint, error) {
	action := ValidationAction{StartAction: start, Status: ActionRunning}
	if err := s.db.WithContext(ctx).Create(&action).Error; err != nil {
		return 0, fmt.Errorf("start validation action: %w", err)
	}
	return action.ValidationActionID, nil
}

// EndValidationAction stamps the sweep's end time and completed status.
func (s *Store) EndValidationAction(ctx context.Context, id uint, end time.Time) error {
	return s.db.WithContext(ctx).Model(&ValidationAction{}).
		Where("validation_action_id = ?", id).
		Updates(map[string]any{"end_action": end, "status": ActionComplete}).Error
}

// GetValidationAction loads one sweep's bracketing row.
func (s *Store) GetValidationAction(ctx context.Context, id uint) (*ValidationAction, error) {
	var action ValidationAction
	if err := s.db.WithContext(ctx).First(&action, id).Error; err != nil {
		return nil, err
	}
	return &action, nil
}

// OutcomesForAction returns the sweep's outcomes in insert order.
func (s *Store) OutcomesForAction(ctx context.Context, id uint) ([]ValidationOutcome, error) {
	var rows []ValidationOutcome
	err := s.db.WithContext(ctx).Where("validation_action_id = ?", id).
		Order("outcome_id").Find(&rows).Error
	return rows, err
}

// InsertValidationOutcome records one checked path and bumps the parent
// action's pass or fail counter in the same transaction.
func (s *Store) InsertValidationOutcome(ctx context.Context, outcome *ValidationOutcome) error {
	counter := "count_bags_with_errors"
	if outcome.Outcome == OutcomePass {
		counter = "count_bags_validated"
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(outcome).Error; err != nil {
			return fmt.Errorf("insert validation outcome: %w", err)
		}
		err := tx.Model(&ValidationAction{}).
			Where("validation_action_id = ?", outcome.ValidationActionID).
			UpdateColumn(counter, gorm.Expr(counter+" + 1")).Error
		if err != nil {
			return fmt.Errorf("bump %s: %w", counter, err)
		}
		return nil
	})
}
