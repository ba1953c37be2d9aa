package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"devsync/internal/mirror"
)

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Spectator streams a room's mirrored events from Redis to a read-only WebSocket.
// Spectators never join the room and are invisible to its participants.
type Spectator struct {
	rdb      subscriber
	prefix   string
	opts     Options
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewSpectator(rdb subscriber, prefix string, opts Options, log *zap.Logger) *Spectator {
	return &Spectator{
		rdb:    rdb,
		prefix: prefix,
		opts:   opts,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(opts.AllowedOrigins),
		},
	}
}

func (s *Spectator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("spectator upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	channel := mirror.Channel(s.prefix, roomID)
	pubsub := s.rdb.Subscribe(ctx, channel)
	defer pubsub.Close()
	s.log.Info("spectator attached", zap.String("room", roomID))

	// Spectators send nothing; reading only detects the close.
	go func() {
		defer cancel()
		ws.SetReadLimit(512)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("spectator detached", zap.String("room", roomID))
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				s.log.Debug("writing to spectator", zap.Error(err))
				return
			}
		}
	}
}
