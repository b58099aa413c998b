package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	"absence-api/internal/access"
	"absence-api/internal/model"
	"absence-api/internal/storage"
	"absence-api/pkg/apierror"
)

type documentStore interface {
	documentLister
	Get(ctx context.Context, id string) (model.Document, error)
}

type absenceGetter interface {
	Get(ctx context.Context, id string) (model.Absence, error)
}

// DocumentService serves attachment downloads. Visibility follows the
// owning absence: whoever may view the absence may fetch its files.
type DocumentService struct {
	documents documentStore
	absences  absenceGetter
	store     storage.Store
	thumbRoot string
}

func NewDocumentService(documents documentStore, absences absenceGetter, store storage.Store, thumbRoot string) *DocumentService {
	if thumbRoot == "" {
		thumbRoot = "./data/.thumbnails"
	}
	return &DocumentService{documents: documents, absences: absences, store: store, thumbRoot: thumbRoot}
}

// Open returns the blob stream plus the row for naming the download.
func (s *DocumentService) Open(ctx context.Context, actor model.Actor, id string) (io.ReadCloser, model.Document, error) {
	doc, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, model.Document{}, err
	}
	reader, err := s.store.Open(doc.StorageRef)
	if err != nil {
		return nil, model.Document{}, err
	}
	return reader, doc, nil
}

// Thumbnail renders a scaled JPEG preview for image attachments. Results
// are cached on disk keyed by blob reference and size.
func (s *DocumentService) Thumbnail(ctx context.Context, actor model.Actor, id string, size int) (io.ReadCloser, error) {
	if size <= 0 || size > 1024 {
		size = 256
	}
	doc, err := s.authorize(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.thumbRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail root: %w", err)
	}
	thumbPath := s.thumbnailPath(doc.StorageRef, size)
	if cached, err := os.Open(thumbPath); err == nil {
		return cached, nil
	}

	blob, err := s.store.Open(doc.StorageRef)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	src, _, err := image.Decode(blob)
	if err != nil {
		return nil, apierror.Validation("attachment is not a previewable image", doc.FileName)
	}

	if err := scaleToJPEG(src, thumbPath, size); err != nil {
		return nil, err
	}
	return os.Open(thumbPath)
}

func (s *DocumentService) authorize(ctx context.Context, actor model.Actor, id string) (model.Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return model.Document{}, err
	}
	absence, err := s.absences.Get(ctx, doc.AbsenceID)
	if err != nil {
		return model.Document{}, err
	}
	if !access.CanPerform(actor, absence.OwnerID, absence.Type, absence.Status, access.OpView) {
		return model.Document{}, apierror.Forbidden("you do not have access to this attachment")
	}
	return doc, nil
}

func (s *DocumentService) thumbnailPath(ref string, size int) string {
	hash := sha256.Sum256([]byte(ref + "|" + strconv.Itoa(size)))
	return filepath.Join(s.thumbRoot, hex.EncodeToString(hash[:])+".jpg")
}

// scaleToJPEG shrinks src so its longer edge fits size, never upscaling,
// and writes the result as a JPEG at path.
func scaleToJPEG(src image.Image, path string, size int) error {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return apierror.Validation("invalid image dimensions", "")
	}

	maxDim := width
	if height > maxDim {
		maxDim = height
	}
	scale := float64(size) / float64(maxDim)
	if scale > 1 {
		scale = 1
	}
	targetWidth := int(math.Round(float64(width) * scale))
	targetHeight := int(math.Round(float64(height) * scale))
	if targetWidth < 1 {
		targetWidth = 1
	}
	if targetHeight < 1 {
		targetHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	writer, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open thumbnail for write: %w", err)
	}
	encodeErr := jpeg.Encode(writer, dst, &jpeg.Options{Quality: 90})
	closeErr := writer.Close()
	if encodeErr != nil {
		return encodeErr
	}
	return closeErr
}
