package ingestion

import (
	"fmt"
	"strings"

	"github.com/rpattn/drillops/internal/domain"

	"github.com/google/uuid"
)

// RowError is an invalid row echoed back to the operator.
type RowError struct {
	RowNumber int      `json:"rowNumber"`
	Reasons   []string `json:"reasons"`
}

// AdminAction asks an operator to create missing reference entries before the
// batch can be committed.
type AdminAction struct {
	Type         string                   `json:"type"`
	Category     domain.ReferenceCategory `json:"category"`
	Message      string                   `json:"message"`
	MissingNames []string                 `json:"missingNames"`
	ValidNames   []string                 `json:"validNames"`
}

// ValidationReport summarizes one validation pass over a batch's pending rows.
type ValidationReport struct {
	BatchID    uuid.UUID `json:"batchId"`
	TotalRows  int       `json:"totalRows"`
	ValidCount int       `json:"validCount"`
	// ErrorCount counts rows with at least one problem in the file itself.
	ErrorCount int `json:"errorCount"`
	// UnresolvedCount counts rows held back only by missing reference data.
	UnresolvedCount int           `json:"unresolvedCount"`
	Errors          []RowError    `json:"errors"`
	AdminActions    []AdminAction `json:"adminActions"`
}

// HasAdminActions reports whether reference data must change before commit.
func (r ValidationReport) HasAdminActions() bool {
	return len(r.AdminActions) > 0
}

// BuildReport aggregates outcomes. Only the first sampleSize file errors are kept.
func BuildReport(batchID uuid.UUID, outcomes []Outcome, missing *MissingReferences, dir *Directory, sampleSize int) ValidationReport {
	report := ValidationReport{
		BatchID:      batchID,
		TotalRows:    len(outcomes),
		Errors:       []RowError{},
		AdminActions: []AdminAction{},
	}

	for _, outcome := range outcomes {
		switch {
		case outcome.Valid():
			report.ValidCount++
		case outcome.OnlyReferenceGaps():
			report.UnresolvedCount++
		default:
			report.ErrorCount++
			if len(report.Errors) < sampleSize {
				report.Errors = append(report.Errors, RowError{RowNumber: outcome.RowNumber, Reasons: outcome.Reasons()})
			}
		}
	}

	for _, category := range domain.ReferenceCategories {
		names := missing.Names(category)
		if len(names) == 0 {
			continue
		}
		report.AdminActions = append(report.AdminActions, AdminAction{
			Type:     "missing_" + string(category),
			Category: category,
			Message: fmt.Sprintf(
				"Create the missing %s entries (%s) in the %s directory, then re-validate the batch.",
				category, strings.Join(names, ", "), category,
			),
			MissingNames: names,
			ValidNames:   dir.Names(category),
		})
	}

	return report
}
