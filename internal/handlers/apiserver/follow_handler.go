package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tripmate/internal/middleware"
	"tripmate/internal/services"
)

// FollowHandler handles HTTP requests related to follow edges.
type FollowHandler struct {
	followService services.FollowService
}

// NewFollowHandler creates a new FollowHandler.
func NewFollowHandler(fs services.FollowService) *FollowHandler {
	return &FollowHandler{followService: fs}
}

// SendFollowRequestPayload defines the expected JSON body for sending a follow request.
type SendFollowRequestPayload struct {
	TargetID uint `json:"targetId"`
}

// SendRequestHandler handles POST /api/v1/follow-requests
func (h *FollowHandler) SendRequestHandler(w http.ResponseWriter, r *http.Request) {
	followerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload SendFollowRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.TargetID == 0 {
		writeJSONError(w, "缺少目标用户ID (targetId)", http.StatusBadRequest)
		return
	}

	outcome, err := h.followService.SendRequest(r.Context(), followerID, payload.TargetID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFollowSelf), errors.Is(err, services.ErrFollowTargetGone):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrFollowEdgeExists):
			writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("Error sending follow request from %d to %d: %v", followerID, payload.TargetID, err)
			writeJSONError(w, "发送关注请求失败", http.StatusInternalServerError)
		}
		return
	}

	message := "关注请求已发送"
	if outcome == services.FollowOutcomeAutoAccepted {
		message = "对方也在等待你，已自动互相关注"
	}
	writeJSONResponse(w, http.StatusOK, message, map[string]services.FollowRequestOutcome{"outcome": outcome})
}

// AcceptHandler handles POST /api/v1/follow-requests/{followerID}/accept
func (h *FollowHandler) AcceptHandler(w http.ResponseWriter, r *http.Request) {
	targetID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	followerID, ok := pathID(r, "followerID")
	if !ok {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return
	}

	if err := h.followService.Accept(r.Context(), followerID, targetID); err != nil {
		if errors.Is(err, services.ErrFollowEdgeNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error accepting follow request %d -> %d: %v", followerID, targetID, err)
			writeJSONError(w, "处理关注请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "关注请求已接受", nil)
}

// RejectHandler handles POST /api/v1/follow-requests/{followerID}/reject
func (h *FollowHandler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	targetID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	followerID, ok := pathID(r, "followerID")
	if !ok {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return
	}

	if err := h.followService.Reject(r.Context(), followerID, targetID); err != nil {
		if errors.Is(err, services.ErrFollowEdgeNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error rejecting follow request %d -> %d: %v", followerID, targetID, err)
			writeJSONError(w, "处理关注请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "关注请求已拒绝", nil)
}

// CancelHandler handles DELETE /api/v1/follow-requests/{targetID}
func (h *FollowHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	followerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	targetID, ok := pathID(r, "targetID")
	if !ok {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return
	}

	if err := h.followService.Cancel(r.Context(), followerID, targetID); err != nil {
		if errors.Is(err, services.ErrFollowEdgeNotFound) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error cancelling follow request %d -> %d: %v", followerID, targetID, err)
			writeJSONError(w, "撤回关注请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "关注请求已撤回", nil)
}

// UnfollowHandler handles DELETE /api/v1/follows/{targetID}
func (h *FollowHandler) UnfollowHandler(w http.ResponseWriter, r *http.Request) {
	followerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	targetID, ok := pathID(r, "targetID")
	if !ok {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return
	}

	if err := h.followService.Unfollow(r.Context(), followerID, targetID); err != nil {
		if errors.Is(err, services.ErrNotFollowingTarget) {
			writeJSONError(w, err.Error(), http.StatusNotFound)
		} else {
			log.Printf("Error unfollowing %d -> %d: %v", followerID, targetID, err)
			writeJSONError(w, "取消关注失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "已取消关注", nil)
}

// StatusHandler handles GET /api/v1/follows/status/{userID}
func (h *FollowHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	// 未认证的查看者也允许查询，恒得 not_following。
	viewerID, _ := middleware.GetUserIDFromContext(r.Context())
	subjectID, ok := pathID(r, "userID")
	if !ok {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return
	}

	status, err := h.followService.Status(r.Context(), viewerID, subjectID)
	if err != nil {
		log.Printf("Error deriving follow status for viewer %d, subject %d: %v", viewerID, subjectID, err)
		writeJSONError(w, "查询关注状态失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", map[string]interface{}{"status": status})
}

// DismissAcceptedHandler handles POST /api/v1/follows/{targetID}/dismiss
func (h *FollowHandler) DismissAcceptedHandler(w http.ResponseWriter, r *http.Request) {
	followerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	targetID, ok := pathID(r, "targetID")
	if !ok {
		writeJSONError(w, "无效的用户ID格式", http.StatusBadRequest)
		return
	}

	if err := h.followService.DismissAcceptedNotice(r.Context(), followerID, targetID); err != nil {
		log.Printf("Error dismissing follow notice %d -> %d: %v", followerID, targetID, err)
		writeJSONError(w, "关闭通知失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "通知已关闭", nil)
}

// ListFollowersHandler handles GET /api/v1/followers
func (h *FollowHandler) ListFollowersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	followers, err := h.followService.ListFollowers(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing followers for user %d: %v", userID, err)
		writeJSONError(w, "获取粉丝列表失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", followers)
}

// ListFollowingHandler handles GET /api/v1/following
func (h *FollowHandler) ListFollowingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	following, err := h.followService.ListFollowing(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing following for user %d: %v", userID, err)
		writeJSONError(w, "获取关注列表失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", following)
}

// ListPendingHandler handles GET /api/v1/follow-requests/pending
func (h *FollowHandler) ListPendingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	pending, err := h.followService.ListPendingIncoming(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing pending follow requests for user %d: %v", userID, err)
		writeJSONError(w, "获取待处理关注请求失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", pending)
}
