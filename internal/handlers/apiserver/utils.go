package apiserver

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// APIResponse 是所有接口统一的响应外壳。
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// writeJSONResponse 是一个辅助函数，用于发送统一外壳的 JSON 响应。
func writeJSONResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := APIResponse{
		Success: statusCode < http.StatusBadRequest,
		Message: message,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		// 头部可能已发出，只能记日志。
		log.Printf("无法编码 JSON 响应: %v", err)
	}
}

// writeJSONError 是一个辅助函数，用于发送 JSON 格式的错误响应。
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, message, nil)
}

// pathID extracts a uint path variable from the request.
func pathID(r *http.Request, name string) (uint, bool) {
	vars := mux.Vars(r)
	raw, ok := vars[name]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
