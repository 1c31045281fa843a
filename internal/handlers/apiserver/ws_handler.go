package apiserver

import (
	"log"
	"net/http"

	"tripmate/internal/auth"
	"tripmate/internal/config"
	ws "tripmate/internal/websocket"
)

// WebSocketHandler 负责处理通知推送的 WebSocket 连接请求。
type WebSocketHandler struct {
	hub       *ws.Hub
	blacklist auth.TokenBlacklist
	cfg       config.Config
}

// NewWebSocketHandler 创建一个新的 WebSocketHandler 实例。
func NewWebSocketHandler(hub *ws.Hub, blacklist auth.TokenBlacklist, cfg config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		hub:       hub,
		blacklist: blacklist,
		cfg:       cfg,
	}
}

// ServeWS 处理传入的 WebSocket 请求。
// 浏览器的 WebSocket API 不能自定义 Authorization 头，令牌通过
// 查询参数传递。通知通道不允许匿名连接。
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

	ws.ServeWsPerConnection(h.hub, claims.UserID, w, r, h.cfg.WebSocket)
}
