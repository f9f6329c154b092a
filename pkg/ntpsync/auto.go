package ntpsync

// SetAutoSync configures the polled scheduler. Intervals below
// MinSyncInterval are raised to it.
func (c *Client) SetAutoSync(enable bool, intervalSeconds uint32) {
	if intervalSeconds < MinSyncInterval {
		intervalSeconds = MinSyncInterval
	}
	c.autoSync = enable
	c.syncInterval = intervalSeconds
	c.logger.Info().Bool("enabled", enable).Uint32("interval", intervalSeconds).Msg("auto-sync configured")
}

func (c *Client) AutoSyncEnabled() bool {
	return c.autoSync
}

func (c *Client) AutoSyncInterval() uint32 {
	return c.syncInterval
}

// LastSyncTime is the corrected epoch of the last successful sync, or 0.
func (c *Client) LastSyncTime() int64 {
	return c.lastSyncTime
}

// Tick runs a sync when one is due. The bool reports whether a sync ran.
// Failed syncs leave LastSyncTime unchanged, so the next Tick retries.
func (c *Client) Tick() (Outcome, bool) {
	if !c.initialized || !c.autoSync {
		return Outcome{}, false
	}

	if c.lastSyncTime != 0 && c.EpochTime()-c.lastSyncTime < int64(c.syncInterval) {
		return Outcome{}, false
	}

	c.logger.Debug().Msg("auto-sync triggered")
	return c.SyncTime(DefaultTimeout), true
}

// NextSyncTime reports when Tick will next sync. It returns false when auto
// sync is disabled or no sync has succeeded yet.
func (c *Client) NextSyncTime() (int64, bool) {
	if !c.autoSync || c.lastSyncTime == 0 {
		return 0, false
	}
	return c.lastSyncTime + int64(c.syncInterval), true
}
