package handler

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"absence-api/internal/service"
	"absence-api/pkg/apierror"
)

type DocumentHandler struct {
	documents *service.DocumentService
	workflow  *service.AbsenceService
}

func NewDocumentHandler(documents *service.DocumentService, workflow *service.AbsenceService) *DocumentHandler {
	return &DocumentHandler{documents: documents, workflow: workflow}
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	reader, doc, err := h.documents.Open(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(filepath.Ext(doc.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	_, _ = io.Copy(w, reader)
}

// Delete detaches an attachment, which counts as an edit of the owning
// absence and follows its workflow gates.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := h.workflow.RemoveDocument(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil, nil)
}

func (h *DocumentHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	reader, err := h.documents.Thumbnail(r.Context(), actor, chi.URLParam(r, "id"), size)
	if err != nil {
		writeError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = io.Copy(w, reader)
}
