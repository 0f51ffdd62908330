package main

import (
	"fmt"
	"net"
	"strconv"
)

// metricsAddrFor derives the metrics listener address from the data
// listener address by incrementing the port, so a single --addr flag
// is enough to locate both ports without a second required flag.
func metricsAddrFor(addr string) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("parse addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("parse port %q: %w", portStr, err)
	}
	return net.JoinHostPort(host, strconv.Itoa(port+1)), nil
}
