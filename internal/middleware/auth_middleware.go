package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"tripmate/internal/auth"
)

// contextKey 是用于在 context.Context 中存储值的自定义类型，以避免键冲突。
type contextKey string

// UserIDKey 是用于在上下文中存储用户ID的键。
const UserIDKey contextKey = "userID"

// UsernameKey 是用于在上下文中存储用户名的键。
const UsernameKey contextKey = "username"

// AuthMiddleware 返回一个 HTTP 中间件，用于验证 JWT 并将用户信息添加到上下文中。
func AuthMiddleware(jwtKey string, blacklist auth.TokenBlacklist) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				writeAuthError(w, "请求未包含授权令牌")
				return
			}

			ctx, errMsg := authenticate(r, jwtKey, blacklist)
			if errMsg != "" {
				writeAuthError(w, errMsg)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthMiddleware 与 AuthMiddleware 类似，但允许匿名访问：
// 未携带授权头时按匿名放行；携带了的令牌仍必须有效。
// 用于"登录后个性化"的公开端点，例如关注状态查询。
func OptionalAuthMiddleware(jwtKey string, blacklist auth.TokenBlacklist) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, errMsg := authenticate(r, jwtKey, blacklist)
			if errMsg != "" {
				writeAuthError(w, errMsg)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate 解析并校验请求头中的 Bearer 令牌，成功时返回携带
// 用户信息的新上下文，失败时返回面向用户的错误消息。
func authenticate(r *http.Request, jwtKey string, blacklist auth.TokenBlacklist) (context.Context, string) {
	headerParts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
		return nil, "授权头部格式无效，应为 Bearer {token}"
	}

	claims, err := auth.ValidateToken(r.Context(), headerParts[1], jwtKey, blacklist)
	if err != nil {
		return nil, "令牌无效"
	}

	// 将用户信息存入请求上下文
	ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
	ctx = context.WithValue(ctx, UsernameKey, claims.Username)
	return ctx, ""
}

// GetUserIDFromContext 从上下文中获取用户ID。
// 如果用户ID不存在或类型不正确，返回0和false。
func GetUserIDFromContext(ctx context.Context) (uint, bool) {
	userID, ok := ctx.Value(UserIDKey).(uint)
	return userID, ok
}

// GetUsernameFromContext 从上下文中获取用户名。
// 如果用户名不存在或类型不正确，返回空字符串和false。
func GetUsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
