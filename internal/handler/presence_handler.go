package handler

import (
	"net/http"

	"chatserver/internal/service"

	"github.com/gorilla/mux"
)

// PresenceHandler answers presence queries over HTTP. State changes come in
// over the websocket; heartbeats posted here only renew the TTL.
type PresenceHandler struct {
	presenceService service.PresenceService
}

func NewPresenceHandler(presenceService service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// Heartbeat renews the caller's online entry. Clients without a live
// websocket can keep themselves online by posting here inside the TTL.
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.presenceService.SetOnline(userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (h *PresenceHandler) Status(w http.ResponseWriter, r *http.Request) {
	if _, ok := requesterID(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	target, err := parseUint(mux.Vars(r)["userID"])
	if err != nil {
		http.Error(w, "The user id must be numeric.", http.StatusBadRequest)
		return
	}

	online, err := h.presenceService.IsOnline(target)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	body := map[string]any{"user_id": target, "online": online}
	if !online {
		if lastSeen, err := h.presenceService.LastSeen(target); err == nil && lastSeen != nil {
			body["last_seen"] = lastSeen
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *PresenceHandler) Typing(w http.ResponseWriter, r *http.Request) {
	if _, ok := requesterID(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	target, err := parseUint(vars["userID"])
	if err != nil {
		http.Error(w, "The user id must be numeric.", http.StatusBadRequest)
		return
	}

	typing, err := h.presenceService.IsTyping(target, vars["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": target, "typing": typing})
}
