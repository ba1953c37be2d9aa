// Package discovery advertises coordinators on the local network over mDNS so
// editors on the same LAN can find one without configuration.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const domain = "local."

// Coordinator is one advertised coordinator found by Browse.
type Coordinator struct {
	Instance string
	Host     string
	Addrs    []net.IP
	Port     int
	Version  string
}

// Addr returns a dialable host:port, preferring the first advertised address.
func (c Coordinator) Addr() string {
	host := strings.TrimSuffix(c.Host, ".")
	if len(c.Addrs) > 0 {
		host = c.Addrs[0].String()
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// InstanceName qualifies instance with the hostname so several coordinators
// can share a LAN.
func InstanceName(instance string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return instance
	}
	return instance + "-" + host
}

func txtRecords(version string) []string {
	return []string{"txtv=1", "version=" + version, "path=/ws"}
}

func parseTXT(txt []string) map[string]string {
	out := make(map[string]string, len(txt))
	for _, kv := range txt {
		k, v, _ := strings.Cut(kv, "=")
		out[k] = v
	}
	return out
}

// Advertise registers the coordinator and keeps the advertisement alive until
// ctx is done.
func Advertise(ctx context.Context, instance, service string, port int, version string, log *zap.Logger) error {
	name := InstanceName(instance)
	server, err := zeroconf.Register(name, service, domain, port, txtRecords(version), nil)
	if err != nil {
		return fmt.Errorf("register mDNS service %s: %w", service, err)
	}
	log.Info("mDNS service registered", zap.String("instance", name), zap.String("service", service), zap.Int("port", port))

	<-ctx.Done()
	server.Shutdown()
	log.Info("mDNS service withdrawn", zap.String("instance", name))
	return nil
}

// Browse collects coordinators advertising service until ctx is done.
func Browse(ctx context.Context, service string) ([]Coordinator, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("init mDNS resolver: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan []Coordinator, 1)
	go func() {
		var out []Coordinator
		defer func() { found <- out }()
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				out = append(out, fromEntry(e))
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", service, err)
	}
	return <-found, nil
}

func fromEntry(e *zeroconf.ServiceEntry) Coordinator {
	return Coordinator{
		Instance: e.Instance,
		Host:     e.HostName,
		Addrs:    append(append([]net.IP(nil), e.AddrIPv4...), e.AddrIPv6...),
		Port:     e.Port,
		Version:  parseTXT(e.Text)["version"],
	}
}
