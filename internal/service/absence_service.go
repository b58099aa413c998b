package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"absence-api/internal/access"
	"absence-api/internal/event"
	"absence-api/internal/model"
	"absence-api/internal/storage"
	"absence-api/pkg/apierror"
)

type absenceStore interface {
	Get(ctx context.Context, id string) (model.Absence, error)
	Create(ctx context.Context, a model.Absence, docs []model.Document) error
	Save(ctx context.Context, a model.Absence, addDocs []model.Document, removeDocIDs []string) error
	List(ctx context.Context, q model.AbsenceQuery) ([]model.AbsenceRow, model.Meta, error)
	Project(ctx context.Context, q model.AbsenceQuery) ([]model.AbsenceExportRow, error)
}

type documentLister interface {
	ListByAbsence(ctx context.Context, absenceID string) ([]model.Document, error)
}

// AbsenceService owns the submission and review workflow. Every mutation
// ends in a single repository call so the record and its document rows
// change together or not at all; blob writes happen first and are undone
// when the database refuses the change.
type AbsenceService struct {
	absences  absenceStore
	documents documentStore
	store     storage.Store
	bus       event.Bus
	logger    *slog.Logger
}

func NewAbsenceService(absences absenceStore, documents documentStore, store storage.Store, bus event.Bus, logger *slog.Logger) *AbsenceService {
	return &AbsenceService{
		absences:  absences,
		documents: documents,
		store:     store,
		bus:       bus,
		logger:    logger,
	}
}

func (s *AbsenceService) Create(ctx context.Context, ownerID string, in model.CreateAbsenceInput) (model.AbsenceDetails, error) {
	if err := validateAbsenceFields(in.Type, in.StartDate, in.EndDate, len(in.Documents), in.DeclarationToDean); err != nil {
		return model.AbsenceDetails{}, err
	}

	now := time.Now().UTC()
	absence := model.Absence{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		Type:              in.Type,
		Status:            model.StatusPending,
		StartDate:         in.StartDate,
		EndDate:           in.EndDate,
		DeclarationToDean: in.DeclarationToDean,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	docs, refs, err := s.saveUploads(absence.ID, in.Documents, now)
	if err != nil {
		return model.AbsenceDetails{}, err
	}
	if err := s.absences.Create(ctx, absence, docs); err != nil {
		s.discardBlobs(refs)
		return model.AbsenceDetails{}, fmt.Errorf("create absence: %w", err)
	}

	s.publish(event.TypeAbsenceCreated, absence)
	return model.AbsenceDetails{Absence: absence, Documents: docs}, nil
}

func (s *AbsenceService) Get(ctx context.Context, actor model.Actor, id string) (model.AbsenceDetails, error) {
	absence, err := s.absences.Get(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, err
	}
	if !access.CanPerform(actor, absence.OwnerID, absence.Type, absence.Status, access.OpView) {
		return model.AbsenceDetails{}, apierror.Forbidden("you do not have access to this absence")
	}
	docs, err := s.documents.ListByAbsence(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, fmt.Errorf("list documents: %w", err)
	}
	return model.AbsenceDetails{Absence: absence, Documents: docs}, nil
}

// Update replaces the editable fields and reconciles the attachment set
// against the full desired set in the request, diffed by file name.
func (s *AbsenceService) Update(ctx context.Context, actor model.Actor, id string, in model.UpdateAbsenceInput) (model.AbsenceDetails, error) {
	absence, err := s.absences.Get(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, err
	}
	if absence.Status == model.StatusRejected {
		return model.AbsenceDetails{}, apierror.Forbidden("a rejected absence cannot be edited")
	}
	deanOverride := actor.Is(model.RoleDeanOffice) && absence.Type == model.AbsenceAcademic
	if absence.Status != model.StatusPending && !deanOverride {
		return model.AbsenceDetails{}, apierror.Forbidden("only pending absences can be edited")
	}
	if !access.CanPerform(actor, absence.OwnerID, absence.Type, absence.Status, access.OpEdit) {
		return model.AbsenceDetails{}, apierror.Forbidden("you do not have access to this absence")
	}

	existing, err := s.documents.ListByAbsence(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, fmt.Errorf("list documents: %w", err)
	}
	diff := diffByName(existing, in.Documents)
	finalCount := len(existing) - len(diff.removals) + len(diff.additions)

	absence.StartDate = in.StartDate
	absence.EndDate = in.EndDate
	if in.DeclarationToDean != nil {
		absence.DeclarationToDean = *in.DeclarationToDean
	}
	if err := validateAbsenceFields(absence.Type, absence.StartDate, absence.EndDate, finalCount, absence.DeclarationToDean); err != nil {
		return model.AbsenceDetails{}, err
	}

	// A dean editing an approved academic absence sends it back for review.
	if absence.Status == model.StatusApproved {
		absence.Status = model.StatusPending
	}
	absence.UpdatedAt = time.Now().UTC()

	if err := s.applyDiff(ctx, &absence, diff); err != nil {
		return model.AbsenceDetails{}, err
	}

	s.publish(event.TypeAbsenceUpdated, absence)
	docs, err := s.documents.ListByAbsence(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, fmt.Errorf("list documents: %w", err)
	}
	return model.AbsenceDetails{Absence: absence, Documents: docs}, nil
}

// Extend pushes the end date out and applies per-type follow-up rules.
// Removals here are explicit document IDs rather than a name diff.
func (s *AbsenceService) Extend(ctx context.Context, actor model.Actor, id string, in model.ExtendAbsenceInput) (model.AbsenceDetails, error) {
	absence, err := s.absences.Get(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, err
	}
	isDean := actor.Is(model.RoleDeanOffice)
	if absence.OwnerID != actor.ID && !isDean {
		return model.AbsenceDetails{}, apierror.Forbidden("you do not have access to this absence")
	}
	if in.NewEndDate == nil {
		return model.AbsenceDetails{}, apierror.Validation("absence fields are invalid", "new_end_date is required")
	}

	// Only Family absences carry a declaration, so a restated value on the
	// request is ignored for every other type.
	declaration := absence.DeclarationToDean
	if absence.Type == model.AbsenceFamily && in.DeclarationToDean != nil {
		declaration = *in.DeclarationToDean
	}

	switch absence.Type {
	case model.AbsenceSick:
		if len(in.Documents) == 0 {
			return model.AbsenceDetails{}, apierror.Validation("absence fields are invalid", "extending a Sick absence requires at least one new document")
		}
	case model.AbsenceFamily:
		if len(in.Documents) == 0 && !declaration {
			return model.AbsenceDetails{}, apierror.Validation("absence fields are invalid", "extending a Family absence requires new documents or declaration_to_dean")
		}
	case model.AbsenceAcademic:
		if !isDean {
			return model.AbsenceDetails{}, apierror.Forbidden("only the dean's office can extend an Academic absence")
		}
	default:
		return model.AbsenceDetails{}, apierror.Validation("absence fields are invalid", "this absence type cannot be extended")
	}

	existing, err := s.documents.ListByAbsence(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, fmt.Errorf("list documents: %w", err)
	}
	byID := make(map[string]model.Document, len(existing))
	names := make(map[string]struct{}, len(existing))
	for _, d := range existing {
		byID[d.ID] = d
		names[d.FileName] = struct{}{}
	}
	for _, f := range in.Documents {
		if _, dup := names[f.FileName]; dup {
			return model.AbsenceDetails{}, apierror.Validation("absence fields are invalid", fmt.Sprintf("a document named %q is already attached", f.FileName))
		}
	}
	var diff documentDiff
	for _, docID := range in.RemovedDocumentIDs {
		doc, ok := byID[docID]
		if !ok {
			return model.AbsenceDetails{}, model.ErrDocumentNotFound
		}
		diff.removals = append(diff.removals, doc)
	}
	diff.additions = in.Documents

	absence.EndDate = in.NewEndDate
	absence.DeclarationToDean = declaration
	if isDean && absence.Type == model.AbsenceAcademic && in.ApproveImmediately {
		absence.Status = model.StatusApproved
	} else {
		absence.Status = model.StatusPending
	}
	absence.UpdatedAt = time.Now().UTC()

	if err := s.applyDiff(ctx, &absence, diff); err != nil {
		return model.AbsenceDetails{}, err
	}

	s.publish(event.TypeAbsenceExtended, absence)
	if absence.Status == model.StatusApproved {
		s.publish(event.TypeAbsenceApproved, absence)
	}
	docs, err := s.documents.ListByAbsence(ctx, id)
	if err != nil {
		return model.AbsenceDetails{}, fmt.Errorf("list documents: %w", err)
	}
	return model.AbsenceDetails{Absence: absence, Documents: docs}, nil
}

// RemoveDocument detaches a single attachment. The same workflow gates as
// Update apply, and the removal must leave the absence valid for its type.
func (s *AbsenceService) RemoveDocument(ctx context.Context, actor model.Actor, docID string) error {
	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		return err
	}
	absence, err := s.absences.Get(ctx, doc.AbsenceID)
	if err != nil {
		return err
	}
	if absence.Status == model.StatusRejected {
		return apierror.Forbidden("a rejected absence cannot be edited")
	}
	deanOverride := actor.Is(model.RoleDeanOffice) && absence.Type == model.AbsenceAcademic
	if absence.Status != model.StatusPending && !deanOverride {
		return apierror.Forbidden("only pending absences can be edited")
	}
	if !access.CanPerform(actor, absence.OwnerID, absence.Type, absence.Status, access.OpEdit) {
		return apierror.Forbidden("you do not have access to this absence")
	}

	existing, err := s.documents.ListByAbsence(ctx, absence.ID)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if err := validateAbsenceFields(absence.Type, absence.StartDate, absence.EndDate, len(existing)-1, absence.DeclarationToDean); err != nil {
		return err
	}

	if absence.Status == model.StatusApproved {
		absence.Status = model.StatusPending
	}
	absence.UpdatedAt = time.Now().UTC()

	if err := s.applyDiff(ctx, &absence, documentDiff{removals: []model.Document{doc}}); err != nil {
		return err
	}

	s.publish(event.TypeAbsenceUpdated, absence)
	return nil
}

func (s *AbsenceService) Approve(ctx context.Context, id string) (model.Absence, error) {
	absence, err := s.absences.Get(ctx, id)
	if err != nil {
		return model.Absence{}, err
	}
	if absence.Status == model.StatusApproved {
		return model.Absence{}, apierror.Conflict("the absence is already approved", "")
	}
	if absence.Status != model.StatusPending {
		return model.Absence{}, apierror.Conflict("only pending absences can be approved", "")
	}
	absence.Status = model.StatusApproved
	absence.RejectionReason = nil
	absence.UpdatedAt = time.Now().UTC()
	if err := s.absences.Save(ctx, absence, nil, nil); err != nil {
		return model.Absence{}, s.saveError(err)
	}
	absence.Version++
	s.publish(event.TypeAbsenceApproved, absence)
	return absence, nil
}

func (s *AbsenceService) Reject(ctx context.Context, id string, reason string) (model.Absence, error) {
	absence, err := s.absences.Get(ctx, id)
	if err != nil {
		return model.Absence{}, err
	}
	if absence.Status == model.StatusRejected {
		return model.Absence{}, apierror.Conflict("the absence is already rejected", "")
	}
	if absence.Status != model.StatusPending {
		return model.Absence{}, apierror.Conflict("only pending absences can be rejected", "")
	}
	absence.Status = model.StatusRejected
	if reason != "" {
		absence.RejectionReason = &reason
	}
	absence.UpdatedAt = time.Now().UTC()
	if err := s.absences.Save(ctx, absence, nil, nil); err != nil {
		return model.Absence{}, s.saveError(err)
	}
	absence.Version++
	s.publish(event.TypeAbsenceRejected, absence)
	return absence, nil
}

func (s *AbsenceService) List(ctx context.Context, actor model.Actor, q model.AbsenceQuery, onlyMine bool) ([]model.AbsenceRow, model.Meta, error) {
	scope := access.ScopeQuery(actor, onlyMine)
	if scope.Empty() {
		return nil, model.Meta{}, apierror.Forbidden("you do not have access to absence listings")
	}
	q.Scope = scope
	return s.absences.List(ctx, q)
}

// saveUploads writes every upload to blob storage and builds the matching
// document rows. On any failure it deletes the blobs it already wrote.
func (s *AbsenceService) saveUploads(absenceID string, uploads []model.FileUpload, now time.Time) ([]model.Document, []string, error) {
	var docs []model.Document
	var refs []string
	for _, f := range uploads {
		ref, err := s.store.Save(f.Content, f.FileName, f.MimeType)
		if err != nil {
			s.discardBlobs(refs)
			return nil, nil, err
		}
		refs = append(refs, ref)
		docs = append(docs, model.Document{
			ID:         uuid.NewString(),
			AbsenceID:  absenceID,
			FileName:   f.FileName,
			StorageRef: ref,
			UploadedAt: now,
		})
	}
	return docs, refs, nil
}

// applyDiff performs the blob side of a reconciliation, removals before
// additions, then commits the record and its document rows in one call.
func (s *AbsenceService) applyDiff(ctx context.Context, absence *model.Absence, diff documentDiff) error {
	for _, doc := range diff.removals {
		if err := s.store.Delete(doc.StorageRef); err != nil {
			return fmt.Errorf("remove document %s: %w", doc.FileName, err)
		}
	}
	addDocs, refs, err := s.saveUploads(absence.ID, diff.additions, absence.UpdatedAt)
	if err != nil {
		return err
	}
	removeIDs := make([]string, 0, len(diff.removals))
	for _, doc := range diff.removals {
		removeIDs = append(removeIDs, doc.ID)
	}
	if err := s.absences.Save(ctx, *absence, addDocs, removeIDs); err != nil {
		s.discardBlobs(refs)
		return s.saveError(err)
	}
	absence.Version++
	return nil
}

func (s *AbsenceService) saveError(err error) error {
	if errors.Is(err, model.ErrVersionConflict) {
		return apierror.Conflict("the absence was modified concurrently", "retry with fresh data")
	}
	return err
}

func (s *AbsenceService) discardBlobs(refs []string) {
	for _, ref := range refs {
		if err := s.store.Delete(ref); err != nil {
			s.logger.Warn("failed to discard blob after aborted write", "ref", ref, "error", err)
		}
	}
}

func (s *AbsenceService) publish(typ event.Type, absence model.Absence) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ActorID:   absence.OwnerID,
		Payload: map[string]any{
			"id":       absence.ID,
			"owner_id": absence.OwnerID,
			"type":     absence.Type,
			"status":   absence.Status,
		},
	})
}
