package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"segmentation_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-access-secret"

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return testSecret }

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newAdminEngine() *gin.Engine {
	engine := gin.New()
	admin := engine.Group("/admin", AuthRequired(testJWTConfig{}), RequireRole("admin"))
	admin.GET("/whoami", func(c *gin.Context) {
		caller, ok := RequireCaller(c)
		if !ok {
			return
		}
		OK(c, gin.H{"userId": caller.UserID})
	})
	return engine
}

func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/whoami", nil)
	newAdminEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRequiredAcceptsAdminToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   "64f1c2aa9b",
		"type":  "access",
		"roles": []string{"admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAdminEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["userId"] != "64f1c2aa9b" {
		t.Fatalf("expected subject to be exposed as user id, got %q", body["userId"])
	}
}

func TestRequireRoleForbidsNonAdmin(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"type":  "access",
		"roles": []string{"user"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAdminEngine().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleErrorWithFallbackHidesUpstreamDetails(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"validation", apperr.Validation("Missing userId or policyType"), http.StatusBadRequest, "Missing userId or policyType"},
		{"not found", apperr.NotFound("User not found"), http.StatusNotFound, "User not found"},
		{"upstream read", apperr.UpstreamRead("count profiles", fmt.Errorf("dial tcp: refused")), http.StatusBadGateway, "Failed to check clicks"},
		{"untyped", fmt.Errorf("boom"), http.StatusInternalServerError, "Failed to check clicks"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			if !HandleErrorWithFallback(c, tc.err, "Failed to check clicks") {
				t.Fatalf("expected error to be handled")
			}
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.wantError {
				t.Fatalf("expected error %q, got %q", tc.wantError, body.Error)
			}
		})
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	engine.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}
