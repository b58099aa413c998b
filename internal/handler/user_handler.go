package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"absence-api/internal/model"
	"absence-api/internal/service"
	"absence-api/pkg/apierror"
)

type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	profile, err := h.users.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, profile, nil)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	query := model.UserQuery{
		Name: strings.TrimSpace(r.URL.Query().Get("name")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("role")); raw != "" {
		role, ok := model.ParseRole(raw)
		if !ok {
			writeError(w, apierror.Validation("unknown role filter", raw))
			return
		}
		query.Role = &role
	}
	query.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	query.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	profiles, meta, err := h.users.List(r.Context(), actor, query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, profiles, &meta)
}

func (h *UserHandler) SetRoles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	var payload model.UpdateRolesRequest
	if err := decodeAndValidate(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.users.SetRoles(r.Context(), actor, chi.URLParam(r, "id"), payload.Roles)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, profile, nil)
}
