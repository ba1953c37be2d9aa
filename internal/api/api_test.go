package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"devsync/internal/auth"
	"devsync/internal/coordinator"
	"devsync/internal/directory"
)

type fixedStats struct {
	st  coordinator.Stats
	err error
}

func (f fixedStats) Stats(context.Context) (coordinator.Stats, error) { return f.st, f.err }

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestCreateAndFetchRoom(t *testing.T) {
	dir := directory.NewMemory()
	h := New(dir, fixedStats{}, nil, zap.NewNop()).Handler()

	rec := do(t, h, http.MethodPost, "/api/rooms", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[struct {
		Message string         `json:"message"`
		Room    directory.Room `json:"room"`
	}](t, rec)
	assert.Equal(t, "Room created successfully", created.Message)
	assert.Equal(t, Anonymous, created.Room.Owner)
	assert.Equal(t, directory.DefaultLanguage, created.Room.Language)

	rec = do(t, h, http.MethodGet, "/api/rooms/"+created.Room.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	room := decode[directory.Room](t, rec)
	assert.Equal(t, created.Room.ID, room.ID)
	assert.Equal(t, []string{Anonymous}, room.Participants)
}

func TestFetchUnknownRoom(t *testing.T) {
	h := New(directory.NewMemory(), fixedStats{}, nil, zap.NewNop()).Handler()

	rec := do(t, h, http.MethodGet, "/api/rooms/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]string{"error": "Room not found"}, decode[map[string]string](t, rec))
}

func TestRoomsRequireToken(t *testing.T) {
	const secret = "s3cret"
	dir := directory.NewMemory()
	h := New(dir, fixedStats{}, auth.NewVerifier(secret), zap.NewNop()).Handler()

	rec := do(t, h, http.MethodPost, "/api/rooms", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	owner, err := auth.Sign(secret, "u-owner", "Alice", time.Minute, time.Now())
	require.NoError(t, err)
	guest, err := auth.Sign(secret, "u-guest", "Bob", time.Minute, time.Now())
	require.NoError(t, err)

	rec = do(t, h, http.MethodPost, "/api/rooms", owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[struct {
		Room directory.Room `json:"room"`
	}](t, rec)
	assert.Equal(t, "u-owner", created.Room.Owner)

	rec = do(t, h, http.MethodGet, "/api/rooms/"+created.Room.ID, guest)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u-owner", "u-guest"}, decode[directory.Room](t, rec).Participants)

	// Fetching again does not duplicate the participant.
	rec = do(t, h, http.MethodGet, "/api/rooms/"+created.Room.ID, guest)
	assert.Equal(t, []string{"u-owner", "u-guest"}, decode[directory.Room](t, rec).Participants)
}

func TestHealthAndBanner(t *testing.T) {
	h := New(directory.NewMemory(), fixedStats{st: coordinator.Stats{Connections: 3, Rooms: 1, Documents: 2}}, auth.NewVerifier("x"), zap.NewNop()).Handler()

	rec := do(t, h, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","connections":3,"rooms":1,"documents":2}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, banner, string(body))

	down := New(directory.NewMemory(), fixedStats{err: errors.New("stopped")}, nil, zap.NewNop()).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, down, http.MethodGet, "/api/health", "").Code)
}
