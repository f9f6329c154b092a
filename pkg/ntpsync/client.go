package ntpsync

import (
	"fmt"
	"io"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/tz"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MinSyncInterval     uint32 = 60
	DefaultSyncInterval uint32 = 3600
	DefaultPollInterval        = time.Millisecond
)

// Client owns one server pool, timezone rule and set of statistics. A Client
// must not be used from several goroutines without external locking.
type Client struct {
	clock     SystemClock
	transport Transport
	monotonic clockwork.Clock
	logger    zerolog.Logger

	initialized  bool
	pollInterval time.Duration

	pool *Pool
	rule tz.Rule

	autoSync     bool
	syncInterval uint32
	lastSyncTime int64
	lastOffsetMs int64
	stats        Statistics

	onSync       SyncCallback
	onTimeChange TimeChangeCallback
	onRTCUpdate  RTCCallback
	yield        YieldFunc
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMonotonicClock sets the clock used for round-trip measurement and the
// sleeps of the response wait loop.
func WithMonotonicClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.monotonic = clock
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

func New(clock SystemClock, opts ...Option) *Client {
	c := &Client{
		clock:        clock,
		monotonic:    clockwork.NewRealClock(),
		logger:       log.Logger.With().Str("component", "ntpsync").Logger(),
		pollInterval: DefaultPollInterval,
		rule:         tz.UTC(),
		syncInterval: DefaultSyncInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.pool = NewPool(c.logger, c.EpochTime)
	return c
}

// Begin attaches the transport and marks the client ready to sync.
func (c *Client) Begin(transport Transport) error {
	if transport == nil {
		return fmt.Errorf("%w: nil transport", ErrTransport)
	}
	if c.initialized {
		c.logger.Warn().Msg("NTP client already initialized")
		return nil
	}

	c.transport = transport
	c.initialized = true
	c.logger.Info().Int("servers", c.pool.Len()).Msg("NTP client initialized")
	return nil
}

// BeginWithDefaults is Begin plus the default public servers when the pool is
// empty.
func (c *Client) BeginWithDefaults(transport Transport) error {
	if c.pool.Len() == 0 {
		for _, host := range DefaultServers {
			if err := c.pool.Add(host, 0); err != nil {
				return err
			}
		}
	}
	return c.Begin(transport)
}

// End detaches the transport, closing it if it implements io.Closer.
func (c *Client) End() error {
	if !c.initialized {
		return nil
	}

	var err error
	if closer, ok := c.transport.(io.Closer); ok {
		err = closer.Close()
	}
	c.transport = nil
	c.initialized = false
	c.logger.Info().Msg("NTP client stopped")
	return err
}

func (c *Client) Initialized() bool {
	return c.initialized
}

func (c *Client) AddServer(hostname string, port uint16) error {
	return c.pool.Add(hostname, port)
}

func (c *Client) RemoveServer(hostname string) error {
	return c.pool.Remove(hostname)
}

func (c *Client) ClearServers() {
	c.pool.Clear()
}

func (c *Client) Servers() []Server {
	return c.pool.List()
}

func (c *Client) BestServer() (Server, bool) {
	return c.pool.Best()
}

func (c *Client) OnSync(cb SyncCallback) {
	c.onSync = cb
}

func (c *Client) OnTimeChange(cb TimeChangeCallback) {
	c.onTimeChange = cb
}

func (c *Client) OnRTCUpdate(cb RTCCallback) {
	c.onRTCUpdate = cb
}

// SetYield registers a hook run on every iteration of the response wait loop.
func (c *Client) SetYield(fn YieldFunc) {
	c.yield = fn
}

func (c *Client) SetTimeZone(rule tz.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	c.rule = rule
	c.logger.Info().Str("timezone", rule.String()).Msg("time zone set")
	return nil
}

func (c *Client) TimeZone() tz.Rule {
	return c.rule
}

func (c *Client) IsDST() bool {
	return c.rule.IsDSTActive(c.EpochTime())
}

func (c *Client) IsDSTAt(epoch int64) bool {
	return c.rule.IsDSTActive(epoch)
}

func (c *Client) EpochTime() int64 {
	sec, _ := c.clock.ReadMicroseconds()
	return sec
}

func (c *Client) LocalTime() int64 {
	return c.rule.Local(c.EpochTime())
}

const notSynced = "Not Synced"

// FormattedTime renders local time with a Go layout, or "Not Synced" while
// the clock still reads within a day of the Unix epoch.
func (c *Client) FormattedTime(layout string) string {
	local := c.LocalTime()
	if local < 86400 {
		return notSynced
	}
	return tz.Format(local, layout)
}

func (c *Client) FormattedDate() string {
	return c.FormattedTime("2006-01-02")
}

func (c *Client) FormattedDateTime() string {
	return c.FormattedTime("2006-01-02 15:04:05")
}

// SetEpochTime steps the clock to a whole second.
func (c *Client) SetEpochTime(epoch int64) error {
	old := c.EpochTime()
	if err := c.clock.Write(epoch, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrClockWrite, err)
	}
	c.logger.Info().Int64("epoch", epoch).Msg("time set manually")
	if c.onTimeChange != nil {
		c.onTimeChange(old, epoch)
	}
	return nil
}

// AdjustTime steps the clock by offsetSeconds.
func (c *Client) AdjustTime(offsetSeconds int64) error {
	return c.SetEpochTime(c.EpochTime() + offsetSeconds)
}

// SyncToRTC pushes the current epoch through the RTC callback. It reports
// false when no callback is registered.
func (c *Client) SyncToRTC() bool {
	if c.onRTCUpdate == nil {
		return false
	}
	epoch := c.EpochTime()
	c.onRTCUpdate(epoch)
	c.logger.Debug().Int64("epoch", epoch).Msg("RTC updated")
	return true
}
