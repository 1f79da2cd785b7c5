package handlers

import (
	"encoding/json"
	"net/http"

	"studio/internal/domain"
)

type renderRequest struct {
	Mode    string          `json:"mode"`
	Payload json.RawMessage `json:"payload"`
}

// RenderProxy relays a render request to the webhook of its mode and mirrors the reply.
func (a *App) RenderProxy(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeBody(r, &req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body."})
		return
	}
	mode := domain.Mode(req.Mode)
	if !mode.Valid() {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "Invalid mode."})
		return
	}
	reply := a.Proxy.Forward(r.Context(), mode, req.Payload)
	a.json(w, reply.Status, reply.Body)
}
