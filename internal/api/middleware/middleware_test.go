package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentCorner/internal/auth"
	"talentCorner/internal/errcode"
)

type stubValidator map[string]*auth.TokenClaims

func (s stubValidator) ValidateToken(token string) (*auth.TokenClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, errors.New("bad token")
}

func newEngine(v TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/me", AuthMiddleware(v), RequirePasswordChangeCompletedMiddleware(), func(c *gin.Context) {
		p, ok := PrincipalOf(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"org": p.Organization, "correlation_id": GetCorrelationID(c)})
	})
	return r
}

func get(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareSetsPrincipal(t *testing.T) {
	r := newEngine(stubValidator{
		"good":    {OrgID: 1, Organization: "Acme", TokenType: auth.TokenTypeAccess},
		"refresh": {OrgID: 1, Organization: "Acme", TokenType: auth.TokenTypeRefresh},
		"locked":  {OrgID: 2, Organization: "Globex", TokenType: auth.TokenTypeAccess, MustChangePassword: true},
	})

	w := get(r, map[string]string{"Authorization": "Bearer good", "X-Correlation-ID": "abc"})
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Acme", body["org"])
	assert.Equal(t, "abc", body["correlation_id"])
	assert.Equal(t, "abc", w.Header().Get("X-Correlation-ID"))

	for _, h := range []string{"", "Bearer", "Basic good", "Bearer refresh", "Bearer nope"} {
		w := get(r, map[string]string{"Authorization": h})
		assert.Equal(t, http.StatusUnauthorized, w.Code, h)
		assert.Contains(t, w.Body.String(), `"code":4001`)
	}

	w = get(r, map[string]string{"Authorization": "Bearer locked"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), passwordChangeRequiredMessage)
}

func TestCorrelationIDReplacesOversizedHeader(t *testing.T) {
	r := newEngine(stubValidator{})
	w := get(r, map[string]string{"X-Correlation-ID": strings.Repeat("x", 100)})
	assert.Len(t, w.Header().Get("X-Correlation-ID"), 36)

	w = get(r, map[string]string{"X-Correlation-ID": "bad id"})
	assert.Len(t, w.Header().Get("X-Correlation-ID"), 36)

	w = get(r, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Correlation-ID"))
}

func TestSlogLoggerMiddlewareRecordsErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(CorrelationIDMiddleware(), SlogLoggerMiddleware(logger))
	r.GET("/boom", func(c *gin.Context) {
		SetErrorCode(c, errcode.SystemError)
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/boom", line["route"])
	assert.Equal(t, "corr-1", line["correlation_id"])
	assert.EqualValues(t, errcode.SystemError, line["error_code"])
}

func TestInternalSecretMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", InternalSecretMiddleware("s3cret"), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req.Header.Set("X-Internal-Secret", "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	unconfigured := gin.New()
	unconfigured.GET("/metrics", InternalSecretMiddleware(" "), func(c *gin.Context) { c.Status(http.StatusOK) })
	w = httptest.NewRecorder()
	unconfigured.ServeHTTP(w, req)
	assert.Equal(t, errcode.HTTPStatus(errcode.SystemError), w.Code)
}
