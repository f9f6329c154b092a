package ntpsync

import "time"

// Transport sends and receives single datagrams.
type Transport interface {
	Send(address string, packet []byte) error
	// Receive copies one datagram into buf. It returns ErrWouldBlock when
	// nothing arrives within remaining, which may be zero.
	Receive(buf []byte, remaining time.Duration) (int, error)
}

// SystemClock reads and sets the process-wide wall clock.
type SystemClock interface {
	ReadMicroseconds() (epochSeconds int64, microseconds int64)
	Write(epochSeconds int64, microseconds int64) error
}

type (
	SyncCallback       func(Outcome)
	TimeChangeCallback func(oldEpoch, newEpoch int64)
	RTCCallback        func(epoch int64)
	YieldFunc          func()
)
