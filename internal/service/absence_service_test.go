package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absence-api/internal/event"
	"absence-api/internal/model"
	"absence-api/pkg/apierror"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAbsenceService(repo *memAbsences, blobs *memBlobStore) *AbsenceService {
	return NewAbsenceService(repo, memDocs{repo}, blobs, event.NewBus(), testLogger())
}

func upload(name string) model.FileUpload {
	return model.FileUpload{FileName: name, MimeType: "application/pdf", Content: strings.NewReader("content of " + name)}
}

var (
	student = model.Actor{ID: "student-1", Roles: model.NewRoleSet(model.RoleStudent)}
	other   = model.Actor{ID: "student-2", Roles: model.NewRoleSet(model.RoleStudent)}
	teacher = model.Actor{ID: "teacher-1", Roles: model.NewRoleSet(model.RoleTeacher)}
	dean    = model.Actor{ID: "dean-1", Roles: model.NewRoleSet(model.RoleDeanOffice)}
)

func createSick(t *testing.T, svc *AbsenceService, docs ...model.FileUpload) model.AbsenceDetails {
	t.Helper()
	details, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
		Type:      model.AbsenceSick,
		StartDate: datePtr("2026-03-01"),
		Documents: docs,
	})
	require.NoError(t, err)
	return details
}

func TestAbsenceService_Create(t *testing.T) {
	t.Run("submission starts pending with saved documents", func(t *testing.T) {
		repo := newMemAbsences()
		blobs := newMemBlobStore()
		svc := newTestAbsenceService(repo, blobs)

		details, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceSick,
			StartDate: datePtr("2026-03-01"),
			Documents: []model.FileUpload{upload("note.pdf")},
		})

		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, details.Status)
		assert.Equal(t, student.ID, details.OwnerID)
		assert.Equal(t, 1, details.Version)
		require.Len(t, details.Documents, 1)
		assert.Contains(t, blobs.blobs, details.Documents[0].StorageRef)
	})

	t.Run("validation failure touches nothing", func(t *testing.T) {
		repo := newMemAbsences()
		blobs := newMemBlobStore()
		svc := newTestAbsenceService(repo, blobs)

		_, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceSick,
			Documents: []model.FileUpload{upload("note.pdf")},
		})

		require.Error(t, err)
		assert.Equal(t, 0, blobs.saves)
		assert.Empty(t, repo.absences)
	})

	t.Run("blob failure leaves no record", func(t *testing.T) {
		repo := newMemAbsences()
		blobs := newMemBlobStore()
		blobs.failSave = true
		svc := newTestAbsenceService(repo, blobs)

		_, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceSick,
			StartDate: datePtr("2026-03-01"),
			Documents: []model.FileUpload{upload("note.pdf")},
		})

		require.Error(t, err)
		assert.Empty(t, repo.absences)
	})

	t.Run("database failure discards saved blobs", func(t *testing.T) {
		repo := newMemAbsences()
		repo.saveErr = assert.AnError
		blobs := newMemBlobStore()
		svc := newTestAbsenceService(repo, blobs)

		_, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceSick,
			StartDate: datePtr("2026-03-01"),
			Documents: []model.FileUpload{upload("note.pdf")},
		})

		require.Error(t, err)
		assert.Empty(t, blobs.blobs)
		assert.Len(t, blobs.deletes, 1)
	})
}

func TestAbsenceService_Get(t *testing.T) {
	repo := newMemAbsences()
	blobs := newMemBlobStore()
	svc := newTestAbsenceService(repo, blobs)
	created := createSick(t, svc, upload("note.pdf"))

	t.Run("owner reads its own record", func(t *testing.T) {
		details, err := svc.Get(context.Background(), student, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, details.ID)
	})

	t.Run("another student is refused", func(t *testing.T) {
		_, err := svc.Get(context.Background(), other, created.ID)
		assertForbidden(t, err)
	})

	t.Run("teacher cannot see pending records", func(t *testing.T) {
		_, err := svc.Get(context.Background(), teacher, created.ID)
		assertForbidden(t, err)
	})

	t.Run("teacher sees the record once approved", func(t *testing.T) {
		_, err := svc.Approve(context.Background(), created.ID)
		require.NoError(t, err)

		details, err := svc.Get(context.Background(), teacher, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusApproved, details.Status)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := svc.Get(context.Background(), dean, "missing")
		assert.ErrorIs(t, err, model.ErrAbsenceNotFound)
	})
}

func TestAbsenceService_Update(t *testing.T) {
	t.Run("rejected record refuses edits from anyone", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))
		_, err := svc.Reject(context.Background(), created.ID, "late filing")
		require.NoError(t, err)

		for _, actor := range []model.Actor{student, dean} {
			_, err := svc.Update(context.Background(), actor, created.ID, model.UpdateAbsenceInput{
				StartDate: datePtr("2026-03-02"),
				Documents: []model.FileUpload{upload("note.pdf")},
			})
			assertForbidden(t, err)
		}
	})

	t.Run("non-owner cannot edit", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		_, err := svc.Update(context.Background(), other, created.ID, model.UpdateAbsenceInput{
			StartDate: datePtr("2026-03-02"),
		})
		assertForbidden(t, err)
	})

	t.Run("approved record is closed to its owner", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))
		_, err := svc.Approve(context.Background(), created.ID)
		require.NoError(t, err)

		_, err = svc.Update(context.Background(), student, created.ID, model.UpdateAbsenceInput{
			StartDate: datePtr("2026-03-02"),
		})
		assertForbidden(t, err)
	})

	t.Run("replacing a file by name removes the old blob", func(t *testing.T) {
		repo := newMemAbsences()
		blobs := newMemBlobStore()
		svc := newTestAbsenceService(repo, blobs)
		created := createSick(t, svc, upload("note.pdf"))
		oldRef := created.Documents[0].StorageRef

		updated, err := svc.Update(context.Background(), student, created.ID, model.UpdateAbsenceInput{
			StartDate: datePtr("2026-03-01"),
			Documents: []model.FileUpload{upload("scan.jpg")},
		})
		require.NoError(t, err)

		require.Len(t, updated.Documents, 1)
		assert.Equal(t, "scan.jpg", updated.Documents[0].FileName)
		assert.NotContains(t, blobs.blobs, oldRef)
		assert.Equal(t, 2, updated.Version)
	})

	t.Run("resubmitting the same set changes nothing", func(t *testing.T) {
		repo := newMemAbsences()
		blobs := newMemBlobStore()
		svc := newTestAbsenceService(repo, blobs)
		created := createSick(t, svc, upload("note.pdf"))
		savesBefore := blobs.saves

		updated, err := svc.Update(context.Background(), student, created.ID, model.UpdateAbsenceInput{
			StartDate: created.StartDate,
			Documents: []model.FileUpload{upload("note.pdf")},
		})
		require.NoError(t, err)

		assert.Equal(t, savesBefore, blobs.saves)
		require.Len(t, updated.Documents, 1)
		assert.Equal(t, created.Documents[0].ID, updated.Documents[0].ID)
	})

	t.Run("merged fields are revalidated", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		_, err := svc.Update(context.Background(), student, created.ID, model.UpdateAbsenceInput{
			Documents: []model.FileUpload{upload("note.pdf")},
		})
		require.Error(t, err)
		apiErr := err.(*apierror.APIError)
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
	})

	t.Run("concurrent modification surfaces as a conflict", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))
		repo.saveErr = model.ErrVersionConflict

		_, err := svc.Update(context.Background(), student, created.ID, model.UpdateAbsenceInput{
			StartDate: datePtr("2026-03-02"),
			Documents: []model.FileUpload{upload("note.pdf")},
		})
		assertConflict(t, err)
	})

	t.Run("dean edit of approved academic absence reopens review", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())

		created, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceAcademic,
			StartDate: datePtr("2026-04-01"),
			EndDate:   datePtr("2026-04-03"),
			Documents: []model.FileUpload{upload("invite.pdf")},
		})
		require.NoError(t, err)
		_, err = svc.Approve(context.Background(), created.ID)
		require.NoError(t, err)

		updated, err := svc.Update(context.Background(), dean, created.ID, model.UpdateAbsenceInput{
			StartDate: datePtr("2026-04-01"),
			EndDate:   datePtr("2026-04-05"),
			Documents: []model.FileUpload{upload("invite.pdf")},
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, updated.Status)
	})
}

func TestAbsenceService_Extend(t *testing.T) {
	t.Run("sick extension needs fresh evidence", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		_, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate: datePtr("2026-03-10"),
		})
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", err.(*apierror.APIError).Code)

		details, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate: datePtr("2026-03-10"),
			Documents:  []model.FileUpload{upload("second-note.pdf")},
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, details.Status)
		assert.Equal(t, "2026-03-10", details.EndDate.Format("2006-01-02"))
		assert.Len(t, details.Documents, 2)
	})

	t.Run("sick extension never picks up a declaration", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		declared := true
		details, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate:        datePtr("2026-03-10"),
			Documents:         []model.FileUpload{upload("second-note.pdf")},
			DeclarationToDean: &declared,
		})
		require.NoError(t, err)
		assert.False(t, details.DeclarationToDean)
		assert.False(t, repo.absences[created.ID].DeclarationToDean)
	})

	t.Run("rejected absence reopens through an extension", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))
		_, err := svc.Reject(context.Background(), created.ID, "incomplete")
		require.NoError(t, err)

		details, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate: datePtr("2026-03-10"),
			Documents:  []model.FileUpload{upload("second-note.pdf")},
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, details.Status)
	})

	t.Run("family extension accepts a declaration instead of documents", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceFamily,
			Documents: []model.FileUpload{upload("proof.pdf")},
		})
		require.NoError(t, err)

		declared := true
		details, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate:        datePtr("2026-03-20"),
			DeclarationToDean: &declared,
		})
		require.NoError(t, err)
		assert.True(t, details.DeclarationToDean)
	})

	t.Run("family extension rides on the stored declaration", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:              model.AbsenceFamily,
			DeclarationToDean: true,
			Documents:         []model.FileUpload{upload("proof.pdf")},
		})
		require.NoError(t, err)

		details, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate: datePtr("2026-03-20"),
		})
		require.NoError(t, err)
		assert.True(t, details.DeclarationToDean)
	})

	t.Run("duplicate file name is refused", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		_, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate: datePtr("2026-03-10"),
			Documents:  []model.FileUpload{upload("note.pdf")},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already attached")
	})

	t.Run("removing an unknown document id fails", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		_, err := svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate:         datePtr("2026-03-10"),
			Documents:          []model.FileUpload{upload("new.pdf")},
			RemovedDocumentIDs: []string{"not-a-doc"},
		})
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})

	t.Run("academic extension is dean only", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceAcademic,
			StartDate: datePtr("2026-04-01"),
			EndDate:   datePtr("2026-04-03"),
			Documents: []model.FileUpload{upload("invite.pdf")},
		})
		require.NoError(t, err)

		_, err = svc.Extend(context.Background(), student, created.ID, model.ExtendAbsenceInput{
			NewEndDate: datePtr("2026-04-10"),
		})
		assertForbidden(t, err)

		details, err := svc.Extend(context.Background(), dean, created.ID, model.ExtendAbsenceInput{
			NewEndDate:         datePtr("2026-04-10"),
			ApproveImmediately: true,
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusApproved, details.Status)
	})
}

func TestAbsenceService_RemoveDocument(t *testing.T) {
	t.Run("owner detaches a spare attachment", func(t *testing.T) {
		repo := newMemAbsences()
		blobs := newMemBlobStore()
		svc := newTestAbsenceService(repo, blobs)
		created, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:              model.AbsenceFamily,
			DeclarationToDean: true,
			Documents:         []model.FileUpload{upload("proof.pdf")},
		})
		require.NoError(t, err)

		require.NoError(t, svc.RemoveDocument(context.Background(), student, created.Documents[0].ID))

		docs, err := repo.ListByAbsence(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Empty(t, docs)
		assert.Contains(t, blobs.deletes, created.Documents[0].StorageRef)
	})

	t.Run("removal must leave the absence valid", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:      model.AbsenceAcademic,
			StartDate: datePtr("2026-04-01"),
			EndDate:   datePtr("2026-04-03"),
			Documents: []model.FileUpload{upload("invite.pdf")},
		})
		require.NoError(t, err)

		err = svc.RemoveDocument(context.Background(), student, created.Documents[0].ID)
		require.Error(t, err)
		assert.Equal(t, "VALIDATION_ERROR", err.(*apierror.APIError).Code)
	})

	t.Run("stranger is refused", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created, err := svc.Create(context.Background(), student.ID, model.CreateAbsenceInput{
			Type:              model.AbsenceFamily,
			DeclarationToDean: true,
			Documents:         []model.FileUpload{upload("proof.pdf")},
		})
		require.NoError(t, err)

		err = svc.RemoveDocument(context.Background(), other, created.Documents[0].ID)
		assertForbidden(t, err)
	})

	t.Run("unknown document", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		err := svc.RemoveDocument(context.Background(), student, "missing")
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}

func TestAbsenceService_Review(t *testing.T) {
	t.Run("approve then approve again conflicts", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		approved, err := svc.Approve(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusApproved, approved.Status)

		_, err = svc.Approve(context.Background(), created.ID)
		assertConflict(t, err)
	})

	t.Run("reject stores the reason", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		rejected, err := svc.Reject(context.Background(), created.ID, "no evidence")
		require.NoError(t, err)
		require.NotNil(t, rejected.RejectionReason)
		assert.Equal(t, "no evidence", *rejected.RejectionReason)
	})

	t.Run("terminal records refuse the other outcome too", func(t *testing.T) {
		repo := newMemAbsences()
		svc := newTestAbsenceService(repo, newMemBlobStore())
		created := createSick(t, svc, upload("note.pdf"))

		_, err := svc.Reject(context.Background(), created.ID, "")
		require.NoError(t, err)
		_, err = svc.Approve(context.Background(), created.ID)
		assertConflict(t, err)
	})
}

func TestAbsenceService_List(t *testing.T) {
	repo := newMemAbsences()
	svc := newTestAbsenceService(repo, newMemBlobStore())

	mine := createSick(t, svc, upload("a.pdf"))
	theirs, err := svc.Create(context.Background(), other.ID, model.CreateAbsenceInput{
		Type:      model.AbsenceSick,
		StartDate: datePtr("2026-03-01"),
		Documents: []model.FileUpload{upload("b.pdf")},
	})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), theirs.ID)
	require.NoError(t, err)

	t.Run("student sees only their own", func(t *testing.T) {
		rows, _, err := svc.List(context.Background(), student, model.AbsenceQuery{}, false)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, mine.ID, rows[0].ID)
	})

	t.Run("teacher sees own plus approved", func(t *testing.T) {
		rows, _, err := svc.List(context.Background(), teacher, model.AbsenceQuery{}, false)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, theirs.ID, rows[0].ID)
	})

	t.Run("teacher only-mine hides everyone else", func(t *testing.T) {
		rows, _, err := svc.List(context.Background(), teacher, model.AbsenceQuery{}, true)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})

	t.Run("dean sees everything", func(t *testing.T) {
		rows, _, err := svc.List(context.Background(), dean, model.AbsenceQuery{}, false)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("actor without roles is refused", func(t *testing.T) {
		_, _, err := svc.List(context.Background(), model.Actor{ID: "ghost"}, model.AbsenceQuery{}, false)
		assertForbidden(t, err)
	})
}

func assertForbidden(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*apierror.APIError)
	require.True(t, ok, "expected an API error, got %v", err)
	assert.Equal(t, "FORBIDDEN", apiErr.Code)
}

func assertConflict(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	apiErr, ok := err.(*apierror.APIError)
	require.True(t, ok, "expected an API error, got %v", err)
	assert.Equal(t, "CONFLICT", apiErr.Code)
}
