package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	token, err := Sign("s3cret", "u-1", "Alice", time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := NewVerifier("s3cret").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "Alice", claims.Name)
}

func TestVerifyRejects(t *testing.T) {
	good, err := Sign("s3cret", "u-1", "", time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := Sign("s3cret", "u-1", "", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	anonymous, err := Sign("s3cret", "", "", time.Hour, time.Now())
	require.NoError(t, err)

	v := NewVerifier("other")
	_, err = v.Verify(good)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong secret")

	v = NewVerifier("s3cret")
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Verify(anonymous)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
	_, err = v.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, "q", FromRequest(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", FromRequest(r))
}

func TestMiddleware(t *testing.T) {
	token, err := Sign("s3cret", "u-9", "Bob", time.Hour, time.Now())
	require.NoError(t, err)

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	onError := func(w http.ResponseWriter, err error) { http.Error(w, err.Error(), http.StatusUnauthorized) }
	h := Middleware(NewVerifier("s3cret"), onError)(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u-9", seen.UserID)

	open := Middleware(nil, onError)(next)
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
