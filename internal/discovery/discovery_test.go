package discovery

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTXTRecordsRoundTrip(t *testing.T) {
	txt := parseTXT(txtRecords("1.2.3"))
	assert.Equal(t, "1", txt["txtv"])
	assert.Equal(t, "1.2.3", txt["version"])
	assert.Equal(t, "/ws", txt["path"])
}

func TestFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry("devsync-box", "_devsync._tcp", "local.")
	e.HostName = "box.local."
	e.Port = 5000
	e.Text = []string{"version=dev"}

	c := fromEntry(e)
	assert.Equal(t, "box.local:5000", c.Addr())
	assert.Equal(t, "dev", c.Version)

	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	assert.Equal(t, "192.168.1.20:5000", fromEntry(e).Addr())
}

func TestInstanceNameIncludesHost(t *testing.T) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		t.Skip("no hostname")
	}
	name := InstanceName("devsync")
	assert.True(t, strings.HasPrefix(name, "devsync-"))
	assert.True(t, strings.HasSuffix(name, host))
}

// Multicast is often unavailable in CI, so the live round trip is opt-in.
func TestAdvertiseAndBrowse(t *testing.T) {
	if os.Getenv("DEVSYNC_TEST_MDNS") == "" {
		t.Skip("set DEVSYNC_TEST_MDNS=1 to exercise multicast DNS")
	}
	const service = "_devsynctest._tcp"
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Advertise(ctx, "devsync", service, 5999, "test", zaptest.NewLogger(t)) }()
	defer func() {
		cancel()
		require.NoError(t, <-errc)
	}()

	bctx, bcancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer bcancel()
	found, err := Browse(bctx, service)
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, 5999, found[0].Port)
	assert.Equal(t, "test", found[0].Version)
}
