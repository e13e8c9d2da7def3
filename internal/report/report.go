// Package report renders a validation sweep as a standalone HTML page for
// operators who do not query the ledger directly.
package report

import (
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"bagvault/internal/ledger"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var reportTmpl = template.Must(
	template.ParseFS(templatesFS, "templates/validation_report.html.tmpl"))

type reportData struct {
	Action    *ledger.ValidationAction
	Outcomes  []ledger.ValidationOutcome
	Generated time.Time
}

// WriteValidationReport renders the sweep into dir as
// validation_report_YYYYMMDD.html and returns the written path. A report
// written later the same day overwrites the earlier one.
func WriteValidationReport(dir string, action *ledger.ValidationAction, outcomes []ledger.ValidationOutcome) (string, error) {
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("validation_report_%s.html", now.Format("20060102")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	data := reportData{Action: action, Outcomes: outcomes, Generated: now}
	if err := reportTmpl.Execute(f, data); err != nil {
		f.Close()
		return "", fmt.Errorf("render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
