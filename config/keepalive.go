package config

import (
	"time"

	"google.golang.org/grpc/keepalive"
)

const (
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultKeepaliveTimeout  = 10 * time.Second

	// DefaultGRPCMsgSize bounds both received and sent messages.
	DefaultGRPCMsgSize = 100 * 1024 * 1024
)

// DefaultKeepaliveParams pings the channel even without active streams.
var DefaultKeepaliveParams = keepalive.ClientParameters{
	Time:                DefaultKeepaliveInterval,
	Timeout:             DefaultKeepaliveTimeout,
	PermitWithoutStream: true,
}
