package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_virtualcan._tcp"

// startMDNS registers the broker via mDNS and returns a cleanup function.
// It is safe to call even if disabled (no-op).
func startMDNS(ctx context.Context, enabled bool, name string, listenAddr string) (func(), error) {
	if !enabled {
		return func() {}, nil
	}
	if name == "" {
		host, _ := os.Hostname()
		name = fmt.Sprintf("virtualcan-%s", host)
	}
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return func() {}, fmt.Errorf("mdns listen addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return func() {}, fmt.Errorf("mdns listen port: %w", err)
	}

	svc, err := zeroconf.Register(name, mdnsServiceType, "local.", port, nil, nil)
	if err != nil {
		return func() {}, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
