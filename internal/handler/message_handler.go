package handler

import (
	"encoding/json"
	"net/http"

	"chatserver/internal/entity"
	"chatserver/internal/service"

	"github.com/gorilla/mux"
)

type sendMessageFields struct {
	Content         string                     `json:"content"`
	Type            string                     `json:"type"`
	Metadata        map[string]any             `json:"metadata"`
	ParentMessageID *string                    `json:"parent_message_id"`
	Attachments     []entity.MessageAttachment `json:"attachments"`
}

type editMessageFields struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type reactionFields struct {
	ReactionType string `json:"reaction_type"`
}

// MessageHandler exposes message history, sending and per-message operations.
type MessageHandler struct {
	messageService service.MessageService
}

func NewMessageHandler(messageService service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var fields sendMessageFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Malformed request body.", http.StatusBadRequest)
		return
	}

	msg, err := h.messageService.Send(service.SendInput{
		ConversationID:  mux.Vars(r)["id"],
		SenderID:        userID,
		Content:         fields.Content,
		Type:            fields.Type,
		Metadata:        fields.Metadata,
		ParentMessageID: fields.ParentMessageID,
		Attachments:     fields.Attachments,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msg, "status": "success"})
}

// List pages backwards through the requester's visible history. The response
// carries next_cursor; clients pass it back as ?before= to continue.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	page, err := h.messageService.ListPage(mux.Vars(r)["id"], userID, queryUint(r, "before"), pageSize(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":    page.Messages,
		"next_cursor": page.NextCursor,
	})
}

func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "A search term is required.", http.StatusBadRequest)
		return
	}

	page, err := h.messageService.Search(mux.Vars(r)["id"], userID, term, queryUint(r, "before"), pageSize(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":    page.Messages,
		"next_cursor": page.NextCursor,
	})
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var fields editMessageFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Malformed request body.", http.StatusBadRequest)
		return
	}

	msg, err := h.messageService.Edit(mux.Vars(r)["messageID"], userID, fields.Content, fields.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg, "status": "success"})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	forEveryone := r.URL.Query().Get("for_everyone") == "true"
	if err := h.messageService.Delete(mux.Vars(r)["messageID"], userID, forEveryone); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	marked, err := h.messageService.MarkRead(mux.Vars(r)["id"], userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked": marked, "status": "success"})
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var fields reactionFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		http.Error(w, "Malformed request body.", http.StatusBadRequest)
		return
	}

	if err := h.messageService.React(mux.Vars(r)["messageID"], userID, fields.ReactionType); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "success"})
}

func (h *MessageHandler) Unreact(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	reactionType := r.URL.Query().Get("reaction_type")
	if reactionType == "" {
		http.Error(w, "A reaction type is required.", http.StatusBadRequest)
		return
	}

	if err := h.messageService.Unreact(mux.Vars(r)["messageID"], userID, reactionType); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// LatestCursor reports the highest allocated cursor so a reconnecting client
// can tell whether it missed anything while offline.
func (h *MessageHandler) LatestCursor(w http.ResponseWriter, r *http.Request) {
	if _, ok := requesterID(r); !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"latest_cursor": h.messageService.LatestCursor()})
}
