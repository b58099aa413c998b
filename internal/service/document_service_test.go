package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absence-api/internal/model"
	"absence-api/internal/storage"
)

func seedDocument(t *testing.T, repo *memAbsences, status model.AbsenceStatus) model.Document {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := model.Document{
		ID:         "doc-1",
		AbsenceID:  "abs-1",
		FileName:   "note.pdf",
		StorageRef: "ref-note",
		UploadedAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), model.Absence{
		ID: "abs-1", OwnerID: student.ID, Type: model.AbsenceSick, Status: status,
		StartDate: datePtr("2026-03-01"), Version: 1, CreatedAt: now, UpdatedAt: now,
	}, []model.Document{doc}))
	return doc
}

func TestDocumentService_Open(t *testing.T) {
	t.Run("owner streams the blob", func(t *testing.T) {
		repo := newMemAbsences()
		doc := seedDocument(t, repo, model.StatusPending)

		blobs := &storage.MockStore{}
		blobs.On("Open", doc.StorageRef).Return(io.NopCloser(bytes.NewReader([]byte("pdf bytes"))), nil)
		svc := NewDocumentService(memDocs{repo}, repo, blobs, t.TempDir())

		reader, got, err := svc.Open(context.Background(), student, doc.ID)
		require.NoError(t, err)
		defer reader.Close()

		assert.Equal(t, doc.FileName, got.FileName)
		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, "pdf bytes", string(data))
		blobs.AssertExpectations(t)
	})

	t.Run("visibility follows the owning absence", func(t *testing.T) {
		repo := newMemAbsences()
		doc := seedDocument(t, repo, model.StatusPending)
		svc := NewDocumentService(memDocs{repo}, repo, &storage.MockStore{}, t.TempDir())

		_, _, err := svc.Open(context.Background(), teacher, doc.ID)
		assertForbidden(t, err)
	})

	t.Run("unknown document", func(t *testing.T) {
		repo := newMemAbsences()
		svc := NewDocumentService(memDocs{repo}, repo, &storage.MockStore{}, t.TempDir())

		_, _, err := svc.Open(context.Background(), dean, "missing")
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}

func TestDocumentService_Thumbnail(t *testing.T) {
	pngBlob := func() []byte {
		img := image.NewRGBA(image.Rect(0, 0, 64, 32))
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			panic(err)
		}
		return buf.Bytes()
	}()

	t.Run("image attachment yields a cached preview", func(t *testing.T) {
		repo := newMemAbsences()
		doc := seedDocument(t, repo, model.StatusPending)

		blobs := &storage.MockStore{}
		blobs.On("Open", doc.StorageRef).Return(io.NopCloser(bytes.NewReader(pngBlob)), nil).Once()
		svc := NewDocumentService(memDocs{repo}, repo, blobs, t.TempDir())

		first, err := svc.Thumbnail(context.Background(), student, doc.ID, 16)
		require.NoError(t, err)
		require.NoError(t, first.Close())

		// Second call is served from the cache without touching the store.
		second, err := svc.Thumbnail(context.Background(), student, doc.ID, 16)
		require.NoError(t, err)
		require.NoError(t, second.Close())
		blobs.AssertExpectations(t)
	})

	t.Run("non-image attachment is refused", func(t *testing.T) {
		repo := newMemAbsences()
		doc := seedDocument(t, repo, model.StatusPending)

		blobs := &storage.MockStore{}
		blobs.On("Open", doc.StorageRef).Return(io.NopCloser(bytes.NewReader([]byte("%PDF-1.4 not an image"))), nil)
		svc := NewDocumentService(memDocs{repo}, repo, blobs, t.TempDir())

		_, err := svc.Thumbnail(context.Background(), student, doc.ID, 64)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a previewable image")
	})
}
