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

// ConnectionHandler handles HTTP requests related to connections.
type ConnectionHandler struct {
	connectionService services.ConnectionService
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(cs services.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connectionService: cs}
}

// RequestConnectionPayload defines the expected JSON body for sending a connection request.
type RequestConnectionPayload struct {
	TargetID uint `json:"targetId"`
}

// RequestConnectionHandler handles POST /api/v1/connections/request
func (h *ConnectionHandler) RequestConnectionHandler(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload RequestConnectionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.TargetID == 0 {
		writeJSONError(w, "缺少目标用户ID (targetId)", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionService.Request(r.Context(), requesterID, payload.TargetID)
	if err != nil {
		if errors.Is(err, services.ErrSelfConnection) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		} else if errors.Is(err, services.ErrTargetNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error requesting connection from %d to %d: %v", requesterID, payload.TargetID, err)
			writeJSONError(w, "发送连接请求失败", http.StatusInternalServerError)
		}
		return
	}
	// 幂等：重复请求返回现有记录，状态码不变
	writeJSONResponse(w, http.StatusOK, conn)
}

// AcceptConnectionHandler handles PUT /api/v1/connections/{connectionID}/accept
func (h *ConnectionHandler) AcceptConnectionHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	connectionIDStr, ok := vars["connectionID"]
	if !ok {
		writeJSONError(w, "缺少连接ID", http.StatusBadRequest)
		return
	}
	connectionID, err := strconv.ParseUint(connectionIDStr, 10, 32)
	if err != nil {
		writeJSONError(w, "无效的连接ID格式", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionService.Accept(r.Context(), actorID, uint(connectionID))
	if err != nil {
		if errors.Is(err, services.ErrConnectionNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else if errors.Is(err, services.ErrAlreadyAccepted) {
			writeJSONError(w, err.Error(), http.StatusConflict)
		} else if errors.Is(err, services.ErrOwnRequestAccept) {
			writeJSONError(w, err.Error(), http.StatusForbidden)
		} else {
			log.Printf("Error accepting connection %d by user %d: %v", connectionID, actorID, err)
			writeJSONError(w, "处理连接请求失败", http.StatusInternalServerError)
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, conn)
}

// ListPendingConnectionsHandler handles GET /api/v1/connections/pending
func (h *ConnectionHandler) ListPendingConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	pending, err := h.connectionService.ListPending(r.Context(), userID)
	if err != nil {
		log.Printf("Error fetching pending connections for user %d: %v", userID, err)
		writeJSONError(w, "获取待处理连接请求失败", http.StatusInternalServerError)
		return
	}

	if pending == nil {
		pending = []*models.ConnectionWithUser{}
	}
	writeJSONResponse(w, http.StatusOK, pending)
}

// ListAcceptedConnectionsHandler handles GET /api/v1/connections/accepted
func (h *ConnectionHandler) ListAcceptedConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	contacts, err := h.connectionService.ListAccepted(r.Context(), userID)
	if err != nil {
		log.Printf("Error fetching accepted connections for user %d: %v", userID, err)
		writeJSONError(w, "获取已连接列表失败", http.StatusInternalServerError)
		return
	}

	if contacts == nil {
		contacts = []*models.UserBasicInfo{}
	}
	writeJSONResponse(w, http.StatusOK, contacts)
}

// PendingCountResponse 是徽标轮询的响应体。
type PendingCountResponse struct {
	Count int64 `json:"count"`
}

// CountPendingConnectionsHandler handles GET /api/v1/connections/pending/count
func (h *ConnectionHandler) CountPendingConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	count, err := h.connectionService.CountPending(r.Context(), userID)
	if err != nil {
		log.Printf("Error counting pending connections for user %d: %v", userID, err)
		writeJSONError(w, "统计待处理请求失败", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, PendingCountResponse{Count: count})
}
