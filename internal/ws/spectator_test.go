package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"devsync/internal/coordinator"
	"devsync/internal/mirror"
	"devsync/internal/protocol"
)

func TestSpectatorNeedsRoom(t *testing.T) {
	s := NewSpectator(nil, "p:", DefaultOptions(), zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/observe/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpectatorStreamsMirroredEvents(t *testing.T) {
	addr := os.Getenv("DEVSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set DEVSYNC_TEST_REDIS_ADDR to run against Redis")
	}
	log := zaptest.NewLogger(t)
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	prefix := "devsync:test:" + time.Now().Format("150405.000000") + ":"
	pub := mirror.NewPublisher(rdb, prefix, 64, log)
	hub := coordinator.NewHub(coordinator.New(log, coordinator.WithSink(pub)), log)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 2)
	go func() { errc <- hub.Run(ctx) }()
	go func() { errc <- pub.Run(ctx) }()

	opts := DefaultOptions()
	h := NewHandler(hub, opts, log)
	router := mux.NewRouter()
	router.Handle("/ws", h)
	router.Handle("/observe/{roomId}", NewSpectator(rdb, prefix, opts, log))
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
		require.NoError(t, <-errc)
		h.Wait()
		srv.Close()
	})
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	watcher, _, err := websocket.DefaultDialer.Dial(base+"/observe/r1", nil)
	require.NoError(t, err)
	t.Cleanup(func() { watcher.Close() })
	// Subscribe happens after the upgrade; give it a moment to land.
	time.Sleep(100 * time.Millisecond)

	editor, _, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { editor.Close() })
	send(t, editor, protocol.JoinRoom{RoomID: "r1", User: protocol.User{Name: "Alice"}})
	send(t, editor, protocol.CodeChange{RoomID: "r1", Code: "x=1"})

	assert.Equal(t, "Alice", readUntil[protocol.UserJoined](t, watcher).NewUser)
	assert.Equal(t, protocol.CodeUpdate{Code: "x=1"}, readUntil[protocol.CodeUpdate](t, watcher))
}
