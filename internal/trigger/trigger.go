// Package trigger implements the sentinel-file state machine for one
// pending submission. A submission is a payload folder plus a same-named
// sentinel file whose extension encodes processing state; renaming the
// sentinel is the state transition.
package trigger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bagvault/internal/idparse"
	"bagvault/internal/packager"
	"bagvault/pkg/bagit"
)

// Status is the sentinel's processing state, encoded as its file extension.
type Status string

const (
	StatusReady      Status = ".ok"
	StatusProcessing Status = ".processing"
	StatusError      Status = ".error"
)

// Validation failure messages, appended to the error sentinel.
const (
	msgFolderMissing    = "Folder does not exist."
	msgFolderEmpty      = "Folder is empty."
	msgFolderUnreadable = "Folder could not be read."
	msgBadMetadata      = "Error parsing metadata."
	msgNoIdentifier     = "Collection identifier could not be parsed from folder title."
	msgSeeLogfileLine   = "See logfile for more information."
)

// How long SetError waits for a rename performed by an earlier call to
// become visible on a network share.
const (
	renameRetries = 5
	renameBackoff = 200 * time.Millisecond
)

// TriggerFile is one pending submission. It owns validation, status
// transitions and cleanup; only the orchestrator mutates it.
type TriggerFile struct {
	base     string // sentinel path without extension; also the payload dir
	sentinel string // current sentinel path
	status   Status

	parser   *idparse.Parser
	strategy packager.Strategy
	metadata bagit.Info
	log      zerolog.Logger
}

// New wraps a ready sentinel. Only ".ok" sentinels are accepted. The
// packaging strategy is selected here, once: a payload that already is a bag
// gets the existing-bag strategy, and the choice never reverses.
func New(path string, parser *idparse.Parser, raw *packager.RawFolder, log zerolog.Logger) (*TriggerFile, error) {
	if ext := filepath.Ext(path); ext != string(StatusReady) {
		return nil, fmt.Errorf("only %s sentinels are processed, got %q", StatusReady, ext)
	}
	base := strings.TrimSuffix(path, string(StatusReady))
	return &TriggerFile{
		base:     base,
		sentinel: path,
		status:   StatusReady,
		parser:   parser,
		strategy: packager.Select(base, raw),
		log:      log.With().Str("transfer", filepath.Base(base)).Logger(),
	}, nil
}

// Dir returns the payload directory.
func (t *TriggerFile) Dir() string { return t.base }

// Name returns the submission's folder title.
func (t *TriggerFile) Name() string { return filepath.Base(t.base) }

// Status returns the current processing state.
func (t *TriggerFile) Status() Status { return t.status }

// Metadata returns the resolved metadata map. Valid only after Validate
// has succeeded.
func (t *TriggerFile) Metadata() bagit.Info { return t.metadata }

// Validate checks the submission and resolves its metadata. On failure the
// sentinel transitions to Error with the accumulated messages appended. On
// success the metadata carries a non-empty primary identifier and exactly
// one parseable UUID; a missing UUID is synthesized, an existing one is
// never overwritten.
func (t *TriggerFile) Validate() bool {
	var errs []string

	fi, err := os.Stat(t.base)
	switch {
	case err != nil || !fi.IsDir():
		errs = append(errs, msgFolderMissing)
	default:
		entries, err := os.ReadDir(t.base)
		switch {
		case err != nil:
			t.log.Error().Err(err).Msg("reading payload directory failed")
			errs = append(errs, msgFolderUnreadable)
		case len(entries) == 0:
			errs = append(errs, msgFolderEmpty)
		}
	}

	if len(errs) == 0 {
		metadata, err := t.strategy.BuildMetadata(t.base)
		if err != nil {
			t.log.Error().Err(err).Msg("building metadata failed")
			errs = append(errs, msgBadMetadata)
		} else {
			t.metadata = metadata
			if !t.resolvePrimaryID() {
				errs = append(errs, msgNoIdentifier)
			}
		}
	}

	if len(errs) > 0 {
		t.SetError(strings.Join(errs, "\n"))
		return false
	}

	t.ensureUUID()
	return true
}

// resolvePrimaryID falls back to parsing the folder title when the metadata
// carries no identifier.
func (t *TriggerFile) resolvePrimaryID() bool {
	if len(t.metadata[bagit.TagExternalIdentifier]) > 0 {
		return true
	}
	ids, ok := t.parser.ExtractAll(t.Name(), true)
	if !ok {
		return false
	}
	t.metadata.Set(bagit.TagExternalIdentifier, ids...)
	return true
}

func (t *TriggerFile) ensureUUID() {
	if existing := t.metadata.Get(bagit.TagInternalSenderID); existing != "" {
		if _, err := uuid.Parse(existing); err == nil {
			return
		}
	}
	id := uuid.NewString()
	t.metadata.Set(bagit.TagInternalSenderID, id)
	t.log.Info().Str("uuid", id).Msg("assigned transfer uuid")
}

// MakePackage transitions Ready to Processing and packages the payload with
// the selected strategy. Call only after Validate has returned true.
func (t *TriggerFile) MakePackage() (*bagit.Bag, error) {
	if t.status != StatusReady {
		return nil, fmt.Errorf("cannot package transfer in state %q", t.status)
	}
	if err := t.setStatus(StatusProcessing); err != nil {
		return nil, err
	}
	return t.strategy.MakePackage(t.base, t.metadata)
}

// setStatus renames the sentinel to reflect the new state. The rename and
// the in-memory transition are one step from the caller's perspective.
func (t *TriggerFile) setStatus(next Status) error {
	newPath := t.base + string(next)
	if err := os.Rename(t.sentinel, newPath); err != nil {
		return fmt.Errorf("transition %s -> %s: %w", t.status, next, err)
	}
	t.sentinel = newPath
	t.status = next
	return nil
}

// SetError transitions to Error and appends the message to the sentinel.
// Error is sticky, and repeated calls append. A rename raced by an earlier
// call is tolerated: the method waits a bounded time for the .error file to
// become visible before giving up, which absorbs propagation delay on
// network shares.
func (t *TriggerFile) SetError(text string) {
	errPath := t.base + string(StatusError)

	if t.status != StatusError {
		if err := os.Rename(t.sentinel, errPath); err != nil {
			if !t.waitForRename(errPath) {
				t.log.Error().Err(err).Msg("could not transition sentinel to error state")
				return
			}
		}
		t.sentinel = errPath
		t.status = StatusError
	}

	if err := t.appendError(text); err != nil {
		t.log.Error().Err(err).Msg("could not append to error sentinel")
	}
	t.log.Error().Str("sentinel", t.sentinel).Msg(text)
}

func (t *TriggerFile) waitForRename(errPath string) bool {
	for i := 0; i < renameRetries; i++ {
		if _, err := os.Stat(errPath); err == nil {
			return true
		}
		time.Sleep(renameBackoff * time.Duration(i+1))
	}
	return false
}

// appendError keeps the pointer to the logfile as the last line however many
// times errors are appended.
func (t *TriggerFile) appendError(text string) error {
	existing, err := os.ReadFile(t.sentinel)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	body := strings.TrimSuffix(string(existing), msgSeeLogfileLine+"\n")
	body += text + "\n" + msgSeeLogfileLine + "\n"
	return os.WriteFile(t.sentinel, []byte(body), 0o644)
}

// Cleanup removes the sentinel and disposes of the payload: deleted, or
// moved into the appraisal holding area when one is configured. Refuses to
// touch anything in Error state.
func (t *TriggerFile) Cleanup(appraisalDir string) error {
	if t.status == StatusError {
		t.log.Warn().Msg("cleanup skipped for errored transfer")
		return nil
	}

	if err := os.Remove(t.sentinel); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sentinel: %w", err)
	}

	if appraisalDir != "" {
		dest := filepath.Join(appraisalDir, t.Name())
		if err := os.Rename(t.base, dest); err != nil {
			return fmt.Errorf("move payload to appraisal area: %w", err)
		}
		t.log.Info().Str("appraisal", dest).Msg("payload moved for appraisal")
		return nil
	}

	if err := os.RemoveAll(t.base); err != nil {
		return fmt.Errorf("remove payload: %w", err)
	}
	t.log.Info().Msg("transfer cleaned up")
	return nil
}
