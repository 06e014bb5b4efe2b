package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/carelattice/taxonomy-backend/internal/platform/ctxutil"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
)

func signServiceToken(t *testing.T, secret, subject string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func authTestRouter(t *testing.T, secret string) (*gin.Engine, *string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(log.Sync)

	var seenActor string
	r := gin.New()
	r.Use(NewAuthMiddleware(log, secret).RequireAuth())
	r.POST("/v1/loads", func(c *gin.Context) {
		seenActor = ctxutil.GetActor(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	return r, &seenActor
}

func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	r, seenActor := authTestRouter(t, "test-secret")

	req := httptest.NewRequest(http.MethodPost, "/v1/loads", nil)
	req.Header.Set("Authorization", "Bearer "+signServiceToken(t, "test-secret", "svc:ingest-console", time.Minute))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got=%d want=%d body=%s", rec.Code, http.StatusNoContent, rec.Body.String())
	}
	if *seenActor != "svc:ingest-console" {
		t.Fatalf("actor: got=%q want=%q", *seenActor, "svc:ingest-console")
	}
}

func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	r, seenActor := authTestRouter(t, "test-secret")

	token := signServiceToken(t, "test-secret", "svc:scheduler", time.Minute)
	req := httptest.NewRequest(http.MethodPost, "/v1/loads?token="+token, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusNoContent)
	}
	if *seenActor != "svc:scheduler" {
		t.Fatalf("actor: got=%q", *seenActor)
	}
}

func TestRequireAuthRejects(t *testing.T) {
	r, _ := authTestRouter(t, "test-secret")

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"wrong secret", signServiceToken(t, "other-secret", "svc:ingest-console", time.Minute)},
		{"expired", signServiceToken(t, "test-secret", "svc:ingest-console", -time.Minute)},
		{"empty subject", signServiceToken(t, "test-secret", "", time.Minute)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/loads", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status: got=%d want=%d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}
