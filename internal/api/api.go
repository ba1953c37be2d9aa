// Package api serves the room directory over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"devsync/internal/auth"
	"devsync/internal/coordinator"
	"devsync/internal/directory"
)

// Anonymous owns rooms created while token checks are disabled.
const Anonymous = "anonymous"

const banner = "devsync coordinator API"

// StatsSource reports live coordinator counters for the health endpoint.
type StatsSource interface {
	Stats(ctx context.Context) (coordinator.Stats, error)
}

type Server struct {
	dir      directory.Directory
	stats    StatsSource
	verifier *auth.Verifier
	log      *zap.Logger
}

func New(dir directory.Directory, stats StatsSource, verifier *auth.Verifier, log *zap.Logger) *Server {
	return &Server{dir: dir, stats: stats, verifier: verifier, log: log}
}

// Routes mounts the API under /api on r.
func (s *Server) Routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("", s.handleBanner).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	rooms := api.PathPrefix("/rooms").Subrouter()
	rooms.Use(auth.Middleware(s.verifier, func(w http.ResponseWriter, err error) {
		writeError(w, http.StatusUnauthorized, err.Error())
	}))
	rooms.HandleFunc("", s.handleCreateRoom).Methods(http.MethodPost)
	rooms.HandleFunc("/{roomId}", s.handleGetRoom).Methods(http.MethodGet)
}

// Handler returns a router serving only the API.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

func (s *Server) handleBanner(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(banner))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st, err := s.stats.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "coordinator unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": st.Connections,
		"rooms":       st.Rooms,
		"documents":   st.Documents,
	})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.dir.Create(r.Context(), caller(r))
	if err != nil {
		s.log.Error("creating room", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	s.log.Info("room created", zap.String("room", room.ID), zap.String("owner", room.Owner))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Room created successfully",
		"room":    room,
	})
}

// handleGetRoom returns the room and records the caller as a participant.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	room, err := s.dir.AddParticipant(r.Context(), roomID, caller(r))
	switch {
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, http.StatusNotFound, "Room not found")
		return
	case err != nil:
		s.log.Error("fetching room", zap.String("room", roomID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch room")
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func caller(r *http.Request) string {
	if c, ok := auth.ClaimsFrom(r.Context()); ok && c.UserID != "" {
		return c.UserID
	}
	return Anonymous
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
