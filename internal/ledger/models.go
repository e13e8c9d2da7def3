package ledger

import "time"

// Collection tracks how many transfers have been committed for one
// collection identifier. Count only ever grows; it mints destination slot
// numbers (t1, t2, ...).
type Collection struct {
	CollectionIdentifier string `gorm:"primaryKey;column:collection_identifier"`
	Count                int    `gorm:"column:count;not null;default:1"`
}

func (Collection) TableName() string { return "collections" }

// Transfer is one committed submission. Rows are immutable once written;
// later validation outcomes supersede them logically, never in place.
type Transfer struct {
	TransferID           uint      `gorm:"primaryKey;autoIncrement;column:transfer_id"`
	CollectionIdentifier string    `gorm:"column:collection_identifier;index"`
	BagUUID              string    `gorm:"column:bag_uuid"`
	TransferDate         string    `gorm:"column:transfer_date"`
	BaggingDate          string    `gorm:"column:bagging_date"`
	PayloadOxum          string    `gorm:"column:payload_oxum"`
	ManifestSHA256Hash   string    `gorm:"column:manifest_sha256_hash;index"`
	StartTime            time.Time `gorm:"column:start_time"`
	EndTime              time.Time `gorm:"column:end_time"`
	OriginalFolderTitle  string    `gorm:"column:original_folder_title"`
	OutcomeFolderTitle   string    `gorm:"column:outcome_folder_title;index"`
	ContactName          string    `gorm:"column:contact_name"`
	SourceOrganization   string    `gorm:"column:source_organization"`
}

func (Transfer) TableName() string { return "transfers" }

// Validation action statuses.
const (
	ActionRunning  = "Running"
	ActionComplete = "Complete"
)

// Validation outcomes.
const (
	OutcomePass = "Pass"
	OutcomeFail = "Fail"
)

// ValidationAction brackets one reconciliation sweep over the archive.
type ValidationAction struct {
	ValidationActionID  uint       `gorm:"primaryKey;autoIncrement;column:validation_action_id"`
	CountBagsValidated  int        `gorm:"column:count_bags_validated;not null;default:0"`
	CountBagsWithErrors int        `gorm:"column:count_bags_with_errors;not null;default:0"`
	StartAction         time.Time  `gorm:"column:start_action"`
	EndAction           *time.Time `gorm:"column:end_action"`
	Status              string     `gorm:"column:status"`
}

func (ValidationAction) TableName() string { return "validation_actions" }

// ValidationOutcome records one checked path within a sweep. Immutable after
// insert.
type ValidationOutcome struct {
	OutcomeID          uint      `gorm:"primaryKey;autoIncrement;column:outcome_id"`
	ValidationActionID uint      `gorm:"column:validation_action_id;index"`
	BagUUID            string    `gorm:"column:bag_uuid"`
	Outcome            string    `gorm:"column:outcome"`
	Errors             string    `gorm:"column:errors"`
	BagPath            string    `gorm:"column:bag_path"`
	StartTime          time.Time `gorm:"column:start_time"`
	EndTime            time.Time `gorm:"column:end_time"`
}

func (ValidationOutcome) TableName() string { return "validation_outcomes" }
