package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"absence-api/internal/middleware"
	"absence-api/internal/model"
	"absence-api/internal/service"
	"absence-api/pkg/apierror"
)

// Multipart forms are parsed with this much memory before spilling to disk.
const maxMultipartMemory = 32 << 20

type AbsenceHandler struct {
	absences *service.AbsenceService
	export   *service.ExportService
}

func NewAbsenceHandler(absences *service.AbsenceService, export *service.ExportService) *AbsenceHandler {
	return &AbsenceHandler{absences: absences, export: export}
}

func (h *AbsenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, apierror.Validation("invalid multipart form", err.Error()))
		return
	}

	startDate, err := parseDateField(r, "start_date")
	if err != nil {
		writeError(w, err)
		return
	}
	endDate, err := parseDateField(r, "end_date")
	if err != nil {
		writeError(w, err)
		return
	}

	uploads, cleanup, err := formUploads(r, "documents")
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	input := model.CreateAbsenceInput{
		Type:              model.AbsenceType(strings.TrimSpace(r.FormValue("type"))),
		StartDate:         startDate,
		EndDate:           endDate,
		DeclarationToDean: parseBoolField(r, "declaration_to_dean"),
		Documents:         uploads,
	}

	details, err := h.absences.Create(r.Context(), actor.ID, input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, details, nil)
}

func (h *AbsenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	details, err := h.absences.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, details, nil)
}

func (h *AbsenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, apierror.Validation("invalid multipart form", err.Error()))
		return
	}

	startDate, err := parseDateField(r, "start_date")
	if err != nil {
		writeError(w, err)
		return
	}
	endDate, err := parseDateField(r, "end_date")
	if err != nil {
		writeError(w, err)
		return
	}

	uploads, cleanup, err := formUploads(r, "documents")
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	input := model.UpdateAbsenceInput{
		StartDate: startDate,
		EndDate:   endDate,
		Documents: uploads,
	}
	if raw := strings.TrimSpace(r.FormValue("declaration_to_dean")); raw != "" {
		declared := parseBoolField(r, "declaration_to_dean")
		input.DeclarationToDean = &declared
	}

	details, err := h.absences.Update(r.Context(), actor, chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, details, nil)
}

func (h *AbsenceHandler) Extend(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, apierror.Validation("invalid multipart form", err.Error()))
		return
	}

	newEndDate, err := parseDateField(r, "new_end_date")
	if err != nil {
		writeError(w, err)
		return
	}

	uploads, cleanup, err := formUploads(r, "documents")
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	input := model.ExtendAbsenceInput{
		NewEndDate:         newEndDate,
		Documents:          uploads,
		RemovedDocumentIDs: splitFormList(r.FormValue("removed_document_ids")),
		ApproveImmediately: parseBoolField(r, "approve_immediately"),
	}
	if raw := strings.TrimSpace(r.FormValue("declaration_to_dean")); raw != "" {
		declared := parseBoolField(r, "declaration_to_dean")
		input.DeclarationToDean = &declared
	}

	details, err := h.absences.Extend(r.Context(), actor, chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, details, nil)
}

func (h *AbsenceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	absence, err := h.absences.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, absence, nil)
}

func (h *AbsenceHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var payload model.RejectRequest
	if err := decodeAndValidate(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	absence, err := h.absences.Reject(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(payload.Reason))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, absence, nil)
}

func (h *AbsenceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	query, err := queryFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, meta, err := h.absences.List(r.Context(), actor, query, parseBoolQuery(r, "only_mine"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, rows, &meta)
}

func (h *AbsenceHandler) Export(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	query, err := queryFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// Render to a buffer first so a mid-render failure still yields a
	// proper error response instead of a truncated file.
	var buf bytes.Buffer
	if err := h.export.Export(r.Context(), actor, query, &buf); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", h.export.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+h.export.FileName()+`"`)
	_, _ = buf.WriteTo(w)
}

func actorFromContext(r *http.Request) (model.Actor, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return model.Actor{}, false
	}
	return claims.Actor(), true
}

// queryFromRequest parses the shared filter query string. The scope field
// stays zero here; services fill it from the access policy.
func queryFromRequest(r *http.Request) (model.AbsenceQuery, error) {
	q := model.AbsenceQuery{
		StudentName: strings.TrimSpace(r.URL.Query().Get("student_name")),
		Group:       strings.TrimSpace(r.URL.Query().Get("group")),
		OwnerIDs:    splitFormList(strings.Join(r.URL.Query()["student_ids"], ",")),
		Sort:        model.AbsenceSort(strings.TrimSpace(r.URL.Query().Get("sort"))),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := model.AbsenceStatus(raw)
		if !status.Valid() {
			return model.AbsenceQuery{}, apierror.Validation("unknown status filter", raw)
		}
		q.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
		typ := model.AbsenceType(raw)
		if !typ.Valid() {
			return model.AbsenceQuery{}, apierror.Validation("unknown type filter", raw)
		}
		q.Type = &typ
	}

	for key, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		raw := strings.TrimSpace(r.URL.Query().Get(key))
		if raw == "" {
			continue
		}
		parsed, err := parseDate(raw)
		if err != nil {
			return model.AbsenceQuery{}, apierror.Validation("invalid date in "+key, raw)
		}
		*dst = parsed
	}

	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return q, nil
}

// formUploads opens every file under the field name and returns a cleanup
// that closes them once the service is done reading.
func formUploads(r *http.Request, field string) ([]model.FileUpload, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, nil
	}

	headers := r.MultipartForm.File[field]
	uploads := make([]model.FileUpload, 0, len(headers))
	open := make([]multipart.File, 0, len(headers))
	cleanup := func() {
		for _, f := range open {
			_ = f.Close()
		}
	}

	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			cleanup()
			return nil, func() {}, apierror.Validation("cannot read uploaded file", header.Filename)
		}
		open = append(open, file)
		uploads = append(uploads, model.FileUpload{
			FileName: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Content:  file,
		})
	}
	return uploads, cleanup, nil
}

func parseDateField(r *http.Request, field string) (*time.Time, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return nil, nil
	}
	parsed, err := parseDate(raw)
	if err != nil {
		return nil, apierror.Validation("invalid date in "+field, raw)
	}
	return parsed, nil
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(raw string) (*time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func parseBoolField(r *http.Request, field string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue(field)))
	return v
}

func parseBoolQuery(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return v
}

func splitFormList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
