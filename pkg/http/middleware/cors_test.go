package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func newCORSEcho(cfg CORSConfig) *echo.Echo {
	e := echo.New()
	e.Use(CORS(cfg))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/api/v1/market/:category/:symbol", ok)
	e.POST("/api/v1/market/batch", ok)
	return e
}

func TestCORS_Preflight(t *testing.T) {
	// Arrange
	e := newCORSEcho(CORSConfig{
		AllowOrigins: []string{"https://app.example.com"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       10 * time.Minute,
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/market/batch", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()

	// Act
	e.ServeHTTP(rec, req)

	// Assert
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	require.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	require.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

func TestCORS_SimpleRequests(t *testing.T) {
	e := newCORSEcho(CORSConfig{AllowOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/market/crypto/BTC", nil)
	req.Header.Set(echo.HeaderOrigin, "https://any.example.com")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	// disallowed origin gets no CORS headers but is still served
	e = newCORSEcho(CORSConfig{AllowOrigins: []string{"https://app.example.com"}})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	// websocket upgrades pass through untouched
	req = httptest.NewRequest(http.MethodGet, "/api/v1/market/crypto/BTC", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	req.Header.Set(echo.HeaderUpgrade, "websocket")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	require.Empty(t, rec.Header().Get(echo.HeaderVary))
}
