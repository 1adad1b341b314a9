package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/core/apperror"
	appctx "marketplace/internal/core/context"
	"marketplace/internal/core/id"
	"marketplace/internal/core/security"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Trace(), ErrorHandler(), Recovery())
	r.GET("/x", handlers...)
	return r
}

func serve(r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRecoveryRendersPanicAsInternalError(t *testing.T) {
	r := newEngine(func(*gin.Context) { panic("boom") })

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, w.Body.String(), "boom")
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestErrorHandlerUsesAppErrorStatus(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		_ = c.Error(apperror.NewNotFound("order", "42"))
		c.Abort()
	})

	w, body := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, body["code"])
}

func TestTraceHonoursIncomingTraceID(t *testing.T) {
	r := newEngine(func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderTraceID, "trace-abc")

	w, _ := serve(r, req)
	assert.Equal(t, "trace-abc", w.Header().Get(HeaderTraceID))
}

func TestRequireRole(t *testing.T) {
	asActor := func(a security.Actor) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), a))
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	vendor := security.Actor{ID: id.New(), Role: security.RoleVendor}
	customer := security.Actor{ID: id.New(), Role: security.RoleCustomer}

	w, _ := serve(newEngine(asActor(vendor), RequireRole(security.RoleAdmin, security.RoleVendor), ok),
		httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := serve(newEngine(asActor(customer), RequireRole(security.RoleAdmin), ok),
		httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperror.CodeForbidden, body["code"])

	w, _ = serve(newEngine(RequireRole(security.RoleAdmin), ok), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
