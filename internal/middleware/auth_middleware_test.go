package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tripmate/internal/auth"
)

const testJWTKey = "test-secret-key"

func mintToken(t *testing.T, key string, userID uint) string {
	t.Helper()
	claims := &auth.Claims{
		UserID:   userID,
		Username: "tester",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-test",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return signed
}

// captureHandler 记录经过中间件后处理函数看到的用户ID。
type captureHandler struct {
	called bool
	userID uint
	hasID  bool
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.userID, h.hasID = GetUserIDFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func TestOptionalAuthMiddlewarePopulatesViewerFromBearerToken(t *testing.T) {
	capture := &captureHandler{}
	handler := OptionalAuthMiddleware(testJWTKey, nil)(capture)

	req := httptest.NewRequest(http.MethodGet, "/follows/status/2", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testJWTKey, 42))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !capture.called {
		t.Fatal("expected the handler to run")
	}
	if !capture.hasID || capture.userID != 42 {
		t.Errorf("expected viewer 42 in context, got (%d, %v)", capture.userID, capture.hasID)
	}
}

func TestOptionalAuthMiddlewareAllowsAnonymous(t *testing.T) {
	capture := &captureHandler{}
	handler := OptionalAuthMiddleware(testJWTKey, nil)(capture)

	req := httptest.NewRequest(http.MethodGet, "/follows/status/2", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !capture.called {
		t.Fatal("expected the handler to run anonymously")
	}
	if capture.hasID {
		t.Errorf("expected no viewer in context, got %d", capture.userID)
	}
}

func TestOptionalAuthMiddlewareRejectsInvalidToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"malformed header", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong signing key", "Bearer " + func() string {
			claims := &auth.Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti-test",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}}
			signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-key"))
			return signed
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := &captureHandler{}
			handler := OptionalAuthMiddleware(testJWTKey, nil)(capture)

			req := httptest.NewRequest(http.MethodGet, "/follows/status/2", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if capture.called {
				t.Error("expected the handler not to run")
			}
		})
	}
}

func TestAuthMiddlewareRequiresToken(t *testing.T) {
	capture := &captureHandler{}
	handler := AuthMiddleware(testJWTKey, nil)(capture)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/followers", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if capture.called {
		t.Fatal("expected the handler not to run")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/followers", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testJWTKey, 7))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
	if capture.userID != 7 {
		t.Errorf("expected viewer 7 in context, got %d", capture.userID)
	}
}
