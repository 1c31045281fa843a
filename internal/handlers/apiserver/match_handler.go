package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tripmate/internal/middleware"
	"tripmate/internal/services"
)

// MatchHandler handles HTTP requests related to swipe matching.
type MatchHandler struct {
	matchService services.MatchService
}

// NewMatchHandler creates a new MatchHandler.
func NewMatchHandler(ms services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: ms}
}

// SwipePayload defines the expected JSON body for swipe operations.
type SwipePayload struct {
	UserID uint `json:"userId"`
}

// CreateOrAdvanceHandler handles POST /api/v1/matches
func (h *MatchHandler) CreateOrAdvanceHandler(w http.ResponseWriter, r *http.Request) {
	initiatorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload SwipePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.UserID == 0 {
		writeJSONError(w, "缺少对方用户ID (userId)", http.StatusBadRequest)
		return
	}

	match, err := h.matchService.CreateOrAdvance(r.Context(), initiatorID, payload.UserID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMatchSelf), errors.Is(err, services.ErrMatchPeerGone):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Error advancing match %d with %d: %v", initiatorID, payload.UserID, err)
			writeJSONError(w, "处理配对失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "", match)
}

// RejectHandler handles POST /api/v1/matches/reject
func (h *MatchHandler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	dismisserID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	var payload SwipePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if payload.UserID == 0 {
		writeJSONError(w, "缺少对方用户ID (userId)", http.StatusBadRequest)
		return
	}

	match, err := h.matchService.Reject(r.Context(), dismisserID, payload.UserID)
	if err != nil {
		if errors.Is(err, services.ErrMatchSelf) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		} else {
			log.Printf("Error rejecting match %d with %d: %v", dismisserID, payload.UserID, err)
			writeJSONError(w, "处理配对拒绝失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "", match)
}

// CandidatesHandler handles GET /api/v1/matches/candidates
func (h *MatchHandler) CandidatesHandler(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 0)

	candidates, err := h.matchService.PotentialCandidates(r.Context(), viewerID, offset, limit)
	if err != nil {
		log.Printf("Error listing candidates for user %d: %v", viewerID, err)
		writeJSONError(w, "获取候选人失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", candidates)
}

// ListAcceptedHandler handles GET /api/v1/matches
func (h *MatchHandler) ListAcceptedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	matches, err := h.matchService.ListAccepted(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing matches for user %d: %v", userID, err)
		writeJSONError(w, "获取配对列表失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", matches)
}

// DismissHandler handles POST /api/v1/matches/{matchID}/dismiss
func (h *MatchHandler) DismissHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	matchID, ok := pathID(r, "matchID")
	if !ok {
		writeJSONError(w, "无效的配对ID格式", http.StatusBadRequest)
		return
	}

	if err := h.matchService.DismissAcceptedNotice(r.Context(), matchID, userID); err != nil {
		switch {
		case errors.Is(err, services.ErrMatchNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNotPartyToMatch):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, services.ErrMatchNotAccepted):
			writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("Error dismissing match %d notice for user %d: %v", matchID, userID, err)
			writeJSONError(w, "关闭通知失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "通知已关闭", nil)
}
