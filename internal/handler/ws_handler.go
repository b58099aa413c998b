package handler

import (
	"net/http"

	"absence-api/internal/websocket"
	"absence-api/pkg/apierror"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Connect upgrades to a websocket carrying workflow notifications scoped
// to the authenticated actor.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r)
	if !ok {
		writeError(w, apierror.Unauthorized("authentication required"))
		return
	}

	websocket.ServeWS(h.hub, actor, w, r)
}
