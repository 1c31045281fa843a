package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tripmate/internal/middleware"
	"tripmate/internal/models"
	"tripmate/internal/services"
)

// TripMembershipHandler handles HTTP requests related to trip join
// requests and roster membership.
type TripMembershipHandler struct {
	tripService services.TripMembershipService
}

// NewTripMembershipHandler creates a new TripMembershipHandler.
func NewTripMembershipHandler(ts services.TripMembershipService) *TripMembershipHandler {
	return &TripMembershipHandler{tripService: ts}
}

// RequestJoinPayload defines the expected JSON body for a join request.
type RequestJoinPayload struct {
	Message string `json:"message,omitempty"`
}

// RequestJoinHandler handles POST /api/v1/trips/{tripID}/requests
func (h *TripMembershipHandler) RequestJoinHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	tripID, ok := pathID(r, "tripID")
	if !ok {
		writeJSONError(w, "无效的行程ID格式", http.StatusBadRequest)
		return
	}

	var payload RequestJoinPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	request, err := h.tripService.RequestJoin(r.Context(), tripID, userID, payload.Message)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTripNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrTripRequestExists), errors.Is(err, services.ErrAlreadyTripMember):
			writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrTripFull):
			// 行程满员是常态化的结果，给出明确文案而不是笼统错误。
			writeJSONError(w, err.Error(), http.StatusConflict)
		default:
			log.Printf("Error creating join request for trip %d by user %d: %v", tripID, userID, err)
			writeJSONError(w, "提交加入请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusCreated, "加入请求已提交", request)
}

// ResolveRequestPayload defines the expected JSON body for resolving a request.
type ResolveRequestPayload struct {
	Status models.TripRequestStatus `json:"status"`
}

// ResolveRequestHandler handles POST /api/v1/trip-requests/{requestID}/resolve
func (h *TripMembershipHandler) ResolveRequestHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := pathID(r, "requestID")
	if !ok {
		writeJSONError(w, "无效的请求ID格式", http.StatusBadRequest)
		return
	}

	var payload ResolveRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, "请求体无效", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.tripService.ResolveRequest(r.Context(), requestID, actorID, payload.Status); err != nil {
		switch {
		case errors.Is(err, services.ErrTripRequestNotFound), errors.Is(err, services.ErrTripNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNotTripOwner):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, services.ErrTripRequestResolved), errors.Is(err, services.ErrTripFull):
			writeJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, services.ErrInvalidRequestStatus):
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			log.Printf("Error resolving trip request %d by user %d: %v", requestID, actorID, err)
			writeJSONError(w, "处理加入请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "加入请求已处理", nil)
}

// LeaveHandler handles POST /api/v1/trips/{tripID}/leave
func (h *TripMembershipHandler) LeaveHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	tripID, ok := pathID(r, "tripID")
	if !ok {
		writeJSONError(w, "无效的行程ID格式", http.StatusBadRequest)
		return
	}

	if err := h.tripService.Leave(r.Context(), tripID, userID); err != nil {
		switch {
		case errors.Is(err, services.ErrTripNotFound), errors.Is(err, services.ErrNotTripMember):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrOwnerCannotLeave):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		default:
			log.Printf("Error leaving trip %d by user %d: %v", tripID, userID, err)
			writeJSONError(w, "退出行程失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "已退出行程", nil)
}

// ListForTripHandler handles GET /api/v1/trips/{tripID}/requests
func (h *TripMembershipHandler) ListForTripHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	tripID, ok := pathID(r, "tripID")
	if !ok {
		writeJSONError(w, "无效的行程ID格式", http.StatusBadRequest)
		return
	}

	requests, err := h.tripService.ListRequestsForTrip(r.Context(), tripID, actorID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTripNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNotTripOwner):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		default:
			log.Printf("Error listing requests for trip %d: %v", tripID, err)
			writeJSONError(w, "获取加入请求失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "", requests)
}

// ListOutgoingHandler handles GET /api/v1/trip-requests/outgoing
func (h *TripMembershipHandler) ListOutgoingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}

	requests, err := h.tripService.ListOutgoingRequests(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing outgoing trip requests for user %d: %v", userID, err)
		writeJSONError(w, "获取已发出的加入请求失败", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, "", requests)
}

// DismissResolvedHandler handles POST /api/v1/trip-requests/{requestID}/dismiss
func (h *TripMembershipHandler) DismissResolvedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
		return
	}
	requestID, ok := pathID(r, "requestID")
	if !ok {
		writeJSONError(w, "无效的请求ID格式", http.StatusBadRequest)
		return
	}

	if err := h.tripService.DismissResolvedNotice(r.Context(), requestID, userID); err != nil {
		switch {
		case errors.Is(err, services.ErrTripRequestNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, services.ErrNotRequester):
			writeJSONError(w, err.Error(), http.StatusForbidden)
		default:
			log.Printf("Error dismissing trip request %d notice: %v", requestID, err)
			writeJSONError(w, "关闭通知失败", http.StatusInternalServerError)
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, "通知已关闭", nil)
}
