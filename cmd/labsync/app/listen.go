package app

import (
	"net"
	"strconv"

	"github.com/agentstation/labsync/internal/server"
	"github.com/agentstation/labsync/pkg/errors"
)

// applyListen sets the relay host and port from a host:port address.
func applyListen(cfg *server.Config, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return errors.NewValidationError("listen", addr, "expected host:port")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return errors.NewValidationError("listen", addr, "invalid port")
	}
	cfg.Host = host
	cfg.Port = port
	return nil
}
