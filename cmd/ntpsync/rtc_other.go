//go:build !linux

package main

import (
	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/rs/zerolog"
)

func rtcCallback(_ bool, logger zerolog.Logger) ntpsync.RTCCallback {
	return func(epoch int64) {
		logger.Debug().Int64("epoch", epoch).Msg("RTC not supported on this platform")
	}
}
