package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"moodlink/internal/middleware"
	"moodlink/internal/models"
	"moodlink/internal/services"

	"github.com/gorilla/mux"
)

// MessageHandler handles HTTP requests related to direct messages.
type MessageHandler struct {
	messageService services.DirectMessageService
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(ms services.DirectMessageService) *MessageHandler {
	return &MessageHandler{messageService: ms}
}

// SendMessagePayload defines the expected JSON body for sending a direct message.
type SendMessagePayload struct {
	ReceiverID uint   `json:"receiverId"`
	Content    string `json:"content"`
	Type       string `json:"type"` // 缺省为 text
}

// SendMessageHandler handles POST /api/v1/messages
func (h *MessageHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
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

	if payload.ReceiverID == 0 {
		writeJSONError(w, "缺少接收者ID (receiverId)", http.StatusBadRequest)
		return
	}
	msgType := models.MessageType(payload.Type)
	if payload.Type == "" {
		msgType = models.TextMessageType
	}

	msg, err := h.messageService.Send(r.Context(), senderID, payload.ReceiverID, payload.Content, msgType)
	if err != nil {
		if errors.Is(err, services.ErrSelfMessage) ||
			errors.Is(err, services.ErrEmptyTextContent) ||
			errors.Is(err, services.ErrInvalidMessageType) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		} else if errors.Is(err, services.ErrNotConnected) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error sending message from %d to %d: %v", senderID, payload.ReceiverID, err)
			writeJSONError(w, "发送私信失败", http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusCreated, msg)
}

// GetHistoryHandler handles GET /api/v1/messages/{counterpartID}?limit=&offset=
func (h *MessageHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	counterpartID, ok := counterpartIDFromPath(w, r)
	if !ok {
		return
	}

	limit := parseQueryInt(r, "limit", 0)
	offset := parseQueryInt(r, "offset", 0)

	messages, err := h.messageService.History(r.Context(), userID, counterpartID, limit, offset)
	if err != nil {
		if errors.Is(err, services.ErrNotConnected) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error fetching history between %d and %d: %v", userID, counterpartID, err)
			writeJSONError(w, "获取私信历史失败", http.StatusInternalServerError)
		}
		return
	}

	if messages == nil {
		messages = []*models.DirectMessage{}
	}
	writeJSONResponse(w, http.StatusOK, messages)
}

// ClearHistoryHandler handles DELETE /api/v1/messages/{counterpartID}
func (h *MessageHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	counterpartID, ok := counterpartIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.messageService.Clear(r.Context(), userID, counterpartID); err != nil {
		log.Printf("Error clearing history between %d and %d: %v", userID, counterpartID, err)
		writeJSONError(w, "清空私信历史失败", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "私信历史已清空"})
}

// counterpartIDFromPath 从路径变量解析对方用户ID，失败时已写好错误响应。
func counterpartIDFromPath(w http.ResponseWriter, r *http.Request) (uint, bool) {
	vars := mux.Vars(r)
	idStr, ok := vars["counterpartID"]
	if !ok {
		writeJSONError(w, "缺少对方用户ID", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}

func parseQueryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
