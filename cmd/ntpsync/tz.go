package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/AndrewLester/ntpsync/pkg/tz"
	"github.com/urfave/cli/v2"
)

var tzCommand = &cli.Command{
	Name:  "tz",
	Usage: "show local time and DST transitions for a timezone",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "zone",
			Usage: "timezone name, defaults to the configured one",
		},
		&cli.Int64Flag{
			Name:  "at",
			Usage: "unix epoch to evaluate instead of now",
		},
	},
	Action: runTZ,
}

func runTZ(c *cli.Context) error {
	zone := c.String("zone")
	if zone == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		zone = cfg.TimeZone
	}

	rule, ok := tz.Lookup(zone)
	if !ok {
		return fmt.Errorf("%w: unknown timezone %q", tz.ErrInvalidRule, zone)
	}

	epoch := time.Now().Unix()
	if c.IsSet("at") {
		epoch = c.Int64("at")
	}

	fmt.Print(describeZone(rule, epoch))
	return nil
}

func describeZone(rule tz.Rule, epoch int64) string {
	const layout = "2006-01-02 15:04:05"
	var b strings.Builder

	fmt.Fprintf(&b, "Zone:  %s\n", rule)
	fmt.Fprintf(&b, "UTC:   %s\n", tz.Format(epoch, layout))
	fmt.Fprintf(&b, "Local: %s\n", tz.Format(rule.Local(epoch), layout))
	if !rule.DST {
		fmt.Fprintln(&b, "DST:   not observed")
		return b.String()
	}

	state := "inactive"
	if rule.IsDSTActive(epoch) {
		state = "active"
	}
	year := time.Unix(epoch, 0).UTC().Year()
	fmt.Fprintf(&b, "DST:   %s (+%dm)\n", state, rule.DSTOffsetMinutes)
	fmt.Fprintf(&b, "Start: %s UTC\n", tz.Format(tz.TransitionTime(year, rule.DSTStart), layout))
	fmt.Fprintf(&b, "End:   %s UTC\n", tz.Format(tz.TransitionTime(year, rule.DSTEnd), layout))
	return b.String()
}
