package chatserver

import (
	"log"
	"net/http"

	"moodlink/internal/auth"
	"moodlink/internal/config"
	ws "moodlink/internal/websocket"
)

// WebSocketHandler 负责处理通知 WebSocket 连接请求。
type WebSocketHandler struct {
	hub       *ws.Hub
	counter   ws.BadgeCounter
	presence  ws.PresenceStore
	blacklist auth.TokenBlacklist
	cfg       config.Config
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, counter ws.BadgeCounter, presence ws.PresenceStore, blacklist auth.TokenBlacklist, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		counter:   counter,
		presence:  presence,
		blacklist: blacklist,
		cfg:       cfg,
	}
}

// ServeWS 处理传入的 WebSocket 请求。
// 浏览器的 WebSocket API 无法设置 Authorization 头，令牌通过 token 查询参数传递。
// 匿名连接不被允许：没有有效令牌就没有可推送的对象。
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "缺少认证令牌", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(r.Context(), token, h.cfg.Auth.JWTSecretKey, h.blacklist)
	if err != nil {
		log.Printf("WebSocket 连接尝试失败：令牌无效: %v", err)
		http.Error(w, "令牌无效", http.StatusUnauthorized)
		return
	}

	log.Printf("用户 %s (ID: %d) 尝试连接通知 WebSocket", claims.Username, claims.UserID)
	ws.ServeWS(h.hub, h.counter, h.presence, claims.UserID, w, r, h.cfg.WebSocket, h.cfg.Poller)
}
