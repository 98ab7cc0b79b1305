package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier("secret", "aegis")
	tok, err := v.Issue("u1", "u1@example.com", "trader", time.Hour)
	require.NoError(t, err)

	claims, err := v.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID())
	assert.Equal(t, "u1@example.com", claims.Email)
}

func TestParseRejectsBadTokens(t *testing.T) {
	v := NewVerifier("secret", "aegis")

	_, err := v.Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)

	other, err := NewVerifier("other", "aegis").Issue("u1", "", "", time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.Issue("u1", "", "", -time.Minute)
	require.NoError(t, err)
	_, err = v.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmptySecretRejectsEverything(t *testing.T) {
	v := NewVerifier("", "")

	_, err := v.Issue("attacker", "", "", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "attacker",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(""))
	require.NoError(t, err)

	claims, err := v.Parse(forged)
	assert.ErrorIs(t, err, ErrNoSecret)
	assert.Nil(t, claims)
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret", "")
	tok, err := v.Issue("u1", "", "", time.Hour)
	require.NoError(t, err)

	e := echo.New()
	whoami := func(c echo.Context) error {
		if cl := ClaimsFrom(c); cl != nil {
			return c.String(http.StatusOK, cl.UserID())
		}
		return c.String(http.StatusOK, "anonymous")
	}
	e.GET("/required", whoami, Middleware(v, true))
	e.GET("/optional", whoami, Middleware(v, false))
	e.GET("/ws", whoami, Middleware(v, false, AllowQueryToken()))

	cases := []struct {
		name   string
		path   string
		header string
		code   int
		body   string
	}{
		{"bearer header", "/required", "Bearer " + tok, http.StatusOK, "u1"},
		{"query token ignored by default", "/required?token=" + tok, "", http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
		{"query token on websocket route", "/ws?token=" + tok, "", http.StatusOK, "u1"},
		{"query token without opt-in is anonymous", "/optional?token=" + tok, "", http.StatusOK, "anonymous"},
		{"missing token", "/required", "", http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
		{"bad scheme", "/required", "Basic abc", http.StatusUnauthorized, "ERR_UNAUTHORIZED"},
		{"optional anonymous", "/optional", "", http.StatusOK, "anonymous"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tc.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}
