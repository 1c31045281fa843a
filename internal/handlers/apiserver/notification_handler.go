package apiserver

import (
	"errors"
	"log"
	"net/http"

	"tripmate/internal/middleware"
	"tripmate/internal/services"
)

// NotificationHandler handles HTTP requests for the read-side
// notification aggregator.
type NotificationHandler struct {
	notificationService services.NotificationService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(ns services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: ns}
}

// UnreadCountHandler handles GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	breakdown, err := h.notificationService.UnreadCount(r.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrNotificationUserGone) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error counting unread notifications for user %d: %v", userID, err)
			writeJSONError(w, "获取未读通知数失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "", breakdown)
}

// FeedHandler handles GET /api/v1/notifications
func (h *NotificationHandler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	limit := queryInt(r, "limit", 50)

	items, err := h.notificationService.Feed(r.Context(), userID, limit)
	if err != nil {
		if errors.Is(err, services.ErrNotificationUserGone) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error assembling notification feed for user %d: %v", userID, err)
			writeJSONError(w, "获取通知列表失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "", items)
}

// MarkReadHandler handles POST /api/v1/notifications/check
func (h *NotificationHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	if err := h.notificationService.MarkRead(r.Context(), userID); err != nil {
		log.Printf("Error marking notifications read for user %d: %v", userID, err)
		writeJSONError(w, "标记通知已读失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "通知已标记为已读", nil)
}

// DismissVerificationHandler handles POST /api/v1/notifications/verification/dismiss
func (h *NotificationHandler) DismissVerificationHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	if err := h.notificationService.DismissVerificationNotice(r.Context(), userID); err != nil {
		log.Printf("Error dismissing verification notice for user %d: %v", userID, err)
		writeJSONError(w, "关闭认证通知失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "通知已关闭", nil)
}
