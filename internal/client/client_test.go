package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"devsync/internal/coordinator"
	"devsync/internal/directory"
	"devsync/internal/protocol"
	"devsync/internal/ws"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, hopts ...ws.HandlerOption) string {
	t.Helper()
	log := zaptest.NewLogger(t)
	hub := coordinator.NewHub(coordinator.New(log), log)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()

	opts := ws.DefaultOptions()
	opts.JoinTimeout = time.Second
	h := ws.NewHandler(hub, opts, log, hopts...)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errc)
		h.Wait()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func next[T protocol.ServerEvent](t *testing.T, c *Client) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "connection closed")
			if e, ok := ev.(T); ok {
				return e
			}
		case <-timeout:
			var zero T
			t.Fatalf("no %T received", zero)
			return zero
		}
	}
}

func TestJoinAndSync(t *testing.T) {
	url := startServer(t)
	ctx := context.Background()
	a := dial(t, url)
	b := dial(t, url)

	res, err := a.Join(ctx, "r1", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, coordinator.Joined, res.Status)
	// The joiner is announced to itself too.
	assert.Equal(t, "Alice", next[protocol.UserJoined](t, a).NewUser)

	res, err = b.Join(ctx, "r1", "Bob", "")
	require.NoError(t, err)
	assert.Equal(t, coordinator.Joined, res.Status)
	assert.Equal(t, "Bob", next[protocol.UserJoined](t, a).NewUser)

	require.NoError(t, a.Send(protocol.CodeSync{RoomID: "r1", Code: "hello world"}))
	assert.Equal(t, protocol.CodeUpdate{Code: "hello world"}, next[protocol.CodeUpdate](t, b))

	require.NoError(t, b.Leave("done"))
	left := next[protocol.UserLeft](t, a)
	assert.Equal(t, "Bob", left.UserName)
	assert.Len(t, left.ConnectedUsers, 1)
}

func TestJoinRejected(t *testing.T) {
	url := startServer(t, ws.WithRoomChecker(directory.NewMemory()))
	c := dial(t, url)

	res, err := c.Join(context.Background(), "ghost", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, coordinator.JoinResult{Status: coordinator.Rejected, Reason: coordinator.ReasonUnknownRoom}, res)
}

func TestPing(t *testing.T) {
	url := startServer(t)
	c := dial(t, url)

	rtt, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Positive(t, rtt)
}

// silentServer accepts the upgrade and never answers.
func silentServer(t *testing.T) string {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestJoinTimesOut(t *testing.T) {
	c := dial(t, silentServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res, err := c.Join(ctx, "r1", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, coordinator.TimedOut, res.Status)
}

func TestJoinWithRetryStopsOnRejection(t *testing.T) {
	url := startServer(t, ws.WithRoomChecker(directory.NewMemory()))

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 5)
	c, res, err := JoinWithRetry(context.Background(), url, "ghost", "Alice", "", time.Second, b)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Equal(t, coordinator.Rejected, res.Status)
}

func TestJoinWithRetryGivesUpAfterTimeouts(t *testing.T) {
	url := silentServer(t)

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
	c, res, err := JoinWithRetry(context.Background(), url, "r1", "Alice", "", 20*time.Millisecond, b)
	require.Error(t, err)
	assert.Nil(t, c)
	assert.Equal(t, coordinator.TimedOut, res.Status)
}

func TestJoinWithRetrySucceeds(t *testing.T) {
	url := startServer(t)

	c, res, err := JoinWithRetry(context.Background(), url, "r1", "Alice", "x=1", time.Second, backoff.NewExponentialBackOff())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	assert.Equal(t, coordinator.Joined, res.Status)
	assert.Equal(t, protocol.CodeUpdate{Code: "x=1"}, next[protocol.CodeUpdate](t, c))
}
