//go:build linux

package main

import (
	"sync"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/ntpsync"
	"github.com/rs/zerolog"
	"github.com/u-root/u-root/pkg/rtc"
)

// The rtc package has no way to close a device, so one handle is kept open.
var (
	rtcClock     *rtc.RTC
	rtcClockErr  error
	rtcClockOnce sync.Once
)

// rtcCallback copies each synced epoch into the hardware clock.
func rtcCallback(dryRun bool, logger zerolog.Logger) ntpsync.RTCCallback {
	return func(epoch int64) {
		if dryRun {
			logger.Debug().Int64("epoch", epoch).Msg("dry run, not setting RTC")
			return
		}

		rtcClockOnce.Do(func() {
			rtcClock, rtcClockErr = rtc.OpenRTC()
		})
		if rtcClockErr != nil {
			logger.Warn().Err(rtcClockErr).Msg("failed to open RTC")
			return
		}

		if err := rtcClock.Set(time.Unix(epoch, 0).UTC()); err != nil {
			logger.Warn().Err(err).Msg("failed to set RTC")
			return
		}
		logger.Info().Int64("epoch", epoch).Msg("RTC updated")
	}
}
