package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/grandcat/zeroconf"
)

const serviceName = "_codencollab._tcp"

var ErrNoServer = errors.New("no Code-N-Collab server found on the local network")

// discover browses mDNS for a server and returns its base websocket URL,
// for example "ws://192.168.1.20:8081".
func discover(ctx context.Context, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("mdns resolver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, serviceName, "local.", entries); err != nil {
		return "", fmt.Errorf("mdns browse: %w", err)
	}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNoServer
			}
			if base, ok := entryURL(entry); ok {
				glog.Infof("[agent]discovered %s at %s", entry.Instance, base)
				return base, nil
			}
		case <-ctx.Done():
			return "", ErrNoServer
		}
	}
}

func entryURL(entry *zeroconf.ServiceEntry) (string, bool) {
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return "", false
	}
	return "ws://" + net.JoinHostPort(ip.String(), strconv.Itoa(entry.Port)), true
}
