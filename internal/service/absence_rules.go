package service

import (
	"strings"
	"time"

	"absence-api/internal/model"
	"absence-api/pkg/apierror"
)

// validateAbsenceFields enforces the per-type field table. Violations are
// collected so the caller learns everything wrong in one round trip.
//
//	Sick:     start date required, declaration forbidden
//	Academic: start and end dates required, at least one document, declaration forbidden
//	Family:   documents required unless declaration_to_dean is set
func validateAbsenceFields(typ model.AbsenceType, start, end *time.Time, docCount int, declaration bool) error {
	var violations []string

	switch typ {
	case model.AbsenceSick:
		if start == nil {
			violations = append(violations, "start_date is required for Sick absences")
		}
		if declaration {
			violations = append(violations, "declaration_to_dean is not allowed for Sick absences")
		}
	case model.AbsenceAcademic:
		if start == nil {
			violations = append(violations, "start_date is required for Academic absences")
		}
		if end == nil {
			violations = append(violations, "end_date is required for Academic absences")
		}
		if docCount == 0 {
			violations = append(violations, "Academic absences require at least one document")
		}
		if declaration {
			violations = append(violations, "declaration_to_dean is not allowed for Academic absences")
		}
	case model.AbsenceFamily:
		if docCount == 0 && !declaration {
			violations = append(violations, "Family absences require documents or declaration_to_dean")
		}
	default:
		violations = append(violations, "unknown absence type")
	}

	if len(violations) > 0 {
		return apierror.Validation("absence fields are invalid", strings.Join(violations, "; "))
	}
	return nil
}

// documentDiff is the minimal attachment change set for one reconciliation.
type documentDiff struct {
	removals  []model.Document
	additions []model.FileUpload
}

// diffByName compares the attached set with the wanted set by file name.
// A name present on both sides is left alone, so re-uploading an unchanged
// file is a no-op and applying the same diff twice converges.
func diffByName(existing []model.Document, wanted []model.FileUpload) documentDiff {
	wantedNames := make(map[string]struct{}, len(wanted))
	for _, f := range wanted {
		wantedNames[f.FileName] = struct{}{}
	}
	existingNames := make(map[string]struct{}, len(existing))
	for _, d := range existing {
		existingNames[d.FileName] = struct{}{}
	}

	var diff documentDiff
	for _, d := range existing {
		if _, keep := wantedNames[d.FileName]; !keep {
			diff.removals = append(diff.removals, d)
		}
	}
	for _, f := range wanted {
		if _, have := existingNames[f.FileName]; !have {
			diff.additions = append(diff.additions, f)
		}
	}
	return diff
}
