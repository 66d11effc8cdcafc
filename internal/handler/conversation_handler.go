package handler

import (
	"encoding/json"
	"net/http"

	"chatserver/internal/entity"
	"chatserver/internal/service"

	"github.com/gorilla/mux"
)

type createConversationFields struct {
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	ParticipantIDs []uint64       `json:"participant_ids"`
	Metadata       map[string]any `json:"metadata"`
}

type updateConversationFields struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

type addParticipantsFields struct {
	UserIDs []uint64 `json:"user_ids"`
}

// ConversationHandler exposes the conversation lifecycle over HTTP.
type ConversationHandler struct {
	conversationService service.ConversationService
}

func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// Create starts a direct or group conversation. Direct creation is
// idempotent: repeated calls with the same peer return the same conversation.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var fields createConversationFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Malformed request body.", http.StatusBadRequest)
		return
	}

	var conv *entity.Conversation
	var err error
	switch entity.ConversationType(fields.Type) {
	case entity.ConversationDirect:
		if len(fields.ParticipantIDs) != 1 {
			http.Error(w, "A direct conversation takes exactly one peer.", http.StatusBadRequest)
			return
		}
		conv, err = h.conversationService.CreateOrReuseDirect(userID, fields.ParticipantIDs[0], fields.Metadata)
	case entity.ConversationGroup:
		conv, err = h.conversationService.CreateGroup(userID, fields.ParticipantIDs, fields.Name, fields.Metadata)
	default:
		http.Error(w, "Unknown conversation type.", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"conversation": conv,
		"status":       "success",
	})
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	convs, err := h.conversationService.ListForUser(userID, pageSize(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conv, err := h.conversationService.GetForUser(mux.Vars(r)["id"], userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv})
}

func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var fields updateConversationFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Malformed request body.", http.StatusBadRequest)
		return
	}

	conv, err := h.conversationService.UpdateConversation(mux.Vars(r)["id"], userID, fields.Name, fields.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation": conv, "status": "success"})
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.conversationService.DeleteOrLeave(mux.Vars(r)["id"], userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (h *ConversationHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var fields addParticipantsFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields.UserIDs) == 0 {
		http.Error(w, "Malformed request body.", http.StatusBadRequest)
		return
	}

	if err := h.conversationService.AddParticipants(mux.Vars(r)["id"], userID, fields.UserIDs); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (h *ConversationHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	target, err := parseUint(vars["userID"])
	if err != nil {
		http.Error(w, "The user id must be numeric.", http.StatusBadRequest)
		return
	}

	if err := h.conversationService.RemoveParticipant(vars["id"], userID, target); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}
