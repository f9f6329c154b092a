// Package ntp implements the 48-byte NTP wire format used by the sync client.
package ntp

import "errors"

const (
	Port           = 123 // NTP port number
	PacketSize     = 48  // header without extension fields
	RequestVersion = 3   // version sent in client requests
)

// UnixEraOffset is 1970 - 1900 in seconds.
const UnixEraOffset int64 = 2_208_988_800

const (
	// MinTransmitSeconds rejects servers echoing uptime instead of wall time.
	MinTransmitSeconds uint32 = 1_000_000_000
	MinEpoch           int64  = 946_684_800   // 2000-01-01T00:00:00Z
	MaxEpoch           int64  = 2_147_483_647 // 2038-01-19T03:14:07Z
)

var ErrInvalidPacket = errors.New("invalid NTP packet")

type Mode byte

const (
	RESERVED Mode = iota
	SYMMETRIC_ACTIVE
	SYMMETRIC_PASSIVE
	CLIENT
	SERVER
	BROADCAST_SERVER
	NTP_CONTROL_MESSAGE
	RESERVED_PRIVATE_USE
)

func (m Mode) String() string {
	switch m {
	case SYMMETRIC_ACTIVE:
		return "symmetric-active"
	case SYMMETRIC_PASSIVE:
		return "symmetric-passive"
	case CLIENT:
		return "client"
	case SERVER:
		return "server"
	case BROADCAST_SERVER:
		return "broadcast"
	case NTP_CONTROL_MESSAGE:
		return "control"
	case RESERVED_PRIVATE_USE:
		return "private"
	default:
		return "reserved"
	}
}

// Timestamp is the 64-bit NTP fixed-point instant: seconds since 1900 and a
// binary fraction in units of 2^-32 s.
type Timestamp struct {
	Seconds  uint32
	Fraction uint32
}

// Packet holds every header field of an NTP datagram.
type Packet struct {
	Leap           byte      /* leap indicator */
	Version        byte      /* version number */
	Mode           Mode      /* mode */
	Stratum        byte      /* stratum */
	Poll           int8      /* poll interval */
	Precision      int8      /* precision */
	RootDelay      uint32    /* root delay */
	RootDispersion uint32    /* root dispersion */
	ReferenceID    uint32    /* reference ID */
	Reference      Timestamp /* reference time */
	Originate      Timestamp /* origin timestamp */
	Receive        Timestamp /* receive timestamp */
	Transmit       Timestamp /* transmit timestamp */
}

// Response is a validated server reply with its transmit time converted to
// the Unix epoch.
type Response struct {
	Packet
	UnixSeconds  int64
	Microseconds int64
}

// ReferenceIDString renders the reference ID the way ntpq does: a four
// character code for stratum 1, a dotted quad otherwise.
func (p Packet) ReferenceIDString() string {
	b := []byte{
		byte(p.ReferenceID >> 24),
		byte(p.ReferenceID >> 16),
		byte(p.ReferenceID >> 8),
		byte(p.ReferenceID),
	}
	if p.Stratum <= 1 {
		end := len(b)
		for end > 0 && b[end-1] == 0 {
			end--
		}
		return string(b[:end])
	}
	return formatIPv4(b)
}

func formatIPv4(b []byte) string {
	out := make([]byte, 0, 15)
	for i, octet := range b {
		if i > 0 {
			out = append(out, '.')
		}
		if octet >= 100 {
			out = append(out, '0'+octet/100)
		}
		if octet >= 10 {
			out = append(out, '0'+(octet/10)%10)
		}
		out = append(out, '0'+octet%10)
	}
	return string(out)
}
