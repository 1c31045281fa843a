package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tripmate/internal/middleware"
	"tripmate/internal/services"
)

// ConversationHandler handles HTTP requests related to direct-message
// conversations.
type ConversationHandler struct {
	convoService services.ConversationService
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(cs services.ConversationService) *ConversationHandler {
	return &ConversationHandler{convoService: cs}
}

// GetOrCreatePayload defines the expected JSON body for opening a conversation.
type GetOrCreatePayload struct {
	UserID uint `json:"userId"`
}

// GetOrCreateHandler handles POST /api/v1/conversations/private
func (h *ConversationHandler) GetOrCreateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload GetOrCreatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.UserID == 0 {
		writeJSONError(w, "缺少对方用户ID (userId)", http.StatusBadRequest)
		return
	}

	convo, created, err := h.convoService.GetOrCreate(r.Context(), userID, payload.UserID)
	if err != nil {
		if errors.Is(err, services.ErrConversationSelf) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		} else {
			log.Printf("Error getting/creating conversation for %d and %d: %v", userID, payload.UserID, err)
			writeJSONError(w, "获取会话失败", http.StatusInternalServerError)
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, "", convo)
}

// SendMessagePayload defines the expected JSON body for sending a message.
// ConversationID 和 RecipientID 二选一；两者都给时以 ConversationID 为准。
type SendMessagePayload struct {
	ConversationID *uint  `json:"conversationId,omitempty"`
	RecipientID    uint   `json:"recipientId,omitempty"`
	Content        string `json:"content"`
}

// SendMessageHandler handles POST /api/v1/messages
func (h *ConversationHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	senderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload SendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.ConversationID == nil && payload.RecipientID == 0 {
		writeJSONError(w, "缺少会话ID (conversationId) 或接收者ID (recipientId)", http.StatusBadRequest)
		return
	}

	message, err := h.convoService.Send(r.Context(), senderID, payload.RecipientID, payload.ConversationID, payload.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage), errors.Is(err, services.ErrConversationSelf),
			errors.Is(err, services.ErrMessageRecipientGone):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrConversationNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNotConversationParty):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		default:
			log.Printf("Error sending message from user %d: %v", senderID, err)
			writeJSONError(w, "发送消息失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusCreated, "消息已发送", message)
}

// ListConversationsHandler handles GET /api/v1/conversations
func (h *ConversationHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	lists, err := h.convoService.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("Error listing conversations for user %d: %v", userID, err)
		writeJSONError(w, "获取会话列表失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", lists)
}

// GetMessagesHandler handles GET /api/v1/conversations/{conversationID}/messages
func (h *ConversationHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	conversationID, ok := pathID(r, "conversationID")
	if !ok {
		writeJSONError(w, "无效的会话ID格式", http.StatusBadRequest)
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	messages, err := h.convoService.GetMessages(r.Context(), conversationID, userID, limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNotConversationParty):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		default:
			log.Printf("Error fetching messages for conversation %d: %v", conversationID, err)
			writeJSONError(w, "获取消息失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "", messages)
}

// MarkReadHandler handles POST /api/v1/conversations/{conversationID}/read
func (h *ConversationHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	conversationID, ok := pathID(r, "conversationID")
	if !ok {
		writeJSONError(w, "无效的会话ID格式", http.StatusBadRequest)
		return
	}

	if err := h.convoService.MarkRead(r.Context(), conversationID, userID); err != nil {
		switch {
		case errors.Is(err, services.ErrConversationNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNotConversationParty):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		default:
			log.Printf("Error marking conversation %d read for user %d: %v", conversationID, userID, err)
			writeJSONError(w, "标记已读失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "已标记为已读", nil)
}
