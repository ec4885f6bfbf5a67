package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rolloutgate/internal/service"
	"rolloutgate/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.InitLogger("test")
}

func newProtectedRouter(devMode bool) *gin.Engine {
	r := gin.New()
	r.Use(JWTMiddleware(devMode))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator": service.GetOperator(c.Request.Context())})
	})
	return r
}

func signToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	claims := service.OperatorClaims{
		UserID:   "1001",
		Username: "admin",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.SigningKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestJWTMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		devMode    bool
		setup      func(*testing.T, *http.Request)
		wantStatus int
	}{
		{
			name:       "Missing token",
			setup:      func(*testing.T, *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Valid bearer token",
			setup: func(t *testing.T, req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+signToken(t, time.Minute))
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Expired token",
			setup: func(t *testing.T, req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+signToken(t, -time.Minute))
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Malformed token",
			setup: func(t *testing.T, req *http.Request) {
				req.Header.Set("Authorization", "Bearer not-a-jwt")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Token via query param",
			setup: func(t *testing.T, req *http.Request) {
				q := req.URL.Query()
				q.Set("token", signToken(t, time.Minute))
				req.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:    "Dev bypass in dev mode",
			devMode: true,
			setup: func(t *testing.T, req *http.Request) {
				req.Header.Set("X-Dev-Pass", "true")
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Dev bypass rejected outside dev mode",
			setup: func(t *testing.T, req *http.Request) {
				req.Header.Set("X-Dev-Pass", "true")
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newProtectedRouter(tt.devMode)
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			tt.setup(t, req)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestJWTMiddlewareInjectsOperator(t *testing.T) {
	r := newProtectedRouter(false)
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, time.Minute))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != `{"operator":"admin"}` {
		t.Errorf("body = %s, want operator admin", body)
	}
}
