package ntpsync

import (
	"errors"

	"github.com/AndrewLester/ntpsync/pkg/ntp"
)

var (
	ErrNotInitialized   = errors.New("NTP client not initialized")
	ErrPoolFull         = errors.New("server pool is full")
	ErrServerNotFound   = errors.New("server not found")
	ErrInvalidServer    = errors.New("invalid server")
	ErrTransport        = errors.New("transport error")
	ErrTimeout          = errors.New("timeout waiting for NTP response")
	ErrInvalidPacket    = ntp.ErrInvalidPacket
	ErrAllServersFailed = errors.New("failed to sync with any server")
	ErrClockWrite       = errors.New("failed to set system clock")

	// ErrWouldBlock is returned by Transport.Receive when no datagram is
	// waiting yet.
	ErrWouldBlock = errors.New("no datagram available")
)
