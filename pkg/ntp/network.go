package ntp

import (
	"encoding/binary"
	"fmt"
)

// EncodeRequest builds a client request whose originate timestamp carries
// the caller's current time. Every other field is zero.
func EncodeRequest(epochMicros int64) []byte {
	return Encode(Packet{
		Version:   RequestVersion,
		Mode:      CLIENT,
		Originate: TimestampFromUnixMicros(epochMicros),
	})
}

func Encode(packet Packet) []byte {
	encoded := make([]byte, PacketSize)
	encoded[0] = (packet.Leap&0b11)<<6 | (packet.Version&0b111)<<3 | byte(packet.Mode)&0b111
	encoded[1] = packet.Stratum
	encoded[2] = byte(packet.Poll)
	encoded[3] = byte(packet.Precision)
	binary.BigEndian.PutUint32(encoded[4:8], packet.RootDelay)
	binary.BigEndian.PutUint32(encoded[8:12], packet.RootDispersion)
	binary.BigEndian.PutUint32(encoded[12:16], packet.ReferenceID)
	putTimestamp(encoded[16:24], packet.Reference)
	putTimestamp(encoded[24:32], packet.Originate)
	putTimestamp(encoded[32:40], packet.Receive)
	putTimestamp(encoded[40:48], packet.Transmit)
	return encoded
}

// Decode splits a 48-byte buffer into header fields without judging them.
func Decode(encoded []byte) (*Packet, error) {
	if len(encoded) != PacketSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidPacket, len(encoded), PacketSize)
	}

	firstByte := encoded[0]
	return &Packet{
		Leap:           firstByte >> 6,
		Version:        (firstByte >> 3) & 0b111,
		Mode:           Mode(firstByte & 0b111),
		Stratum:        encoded[1],
		Poll:           int8(encoded[2]),
		Precision:      int8(encoded[3]),
		RootDelay:      binary.BigEndian.Uint32(encoded[4:8]),
		RootDispersion: binary.BigEndian.Uint32(encoded[8:12]),
		ReferenceID:    binary.BigEndian.Uint32(encoded[12:16]),
		Reference:      readTimestamp(encoded[16:24]),
		Originate:      readTimestamp(encoded[24:32]),
		Receive:        readTimestamp(encoded[32:40]),
		Transmit:       readTimestamp(encoded[40:48]),
	}, nil
}

// DecodeResponse decodes a server reply and checks that its transmit time is
// a plausible wall-clock instant between 2000 and 2038.
func DecodeResponse(encoded []byte) (*Response, error) {
	packet, err := Decode(encoded)
	if err != nil {
		return nil, err
	}

	xmt := packet.Transmit
	if xmt.Seconds < MinTransmitSeconds {
		return nil, fmt.Errorf("%w: transmit seconds %d look like uptime, not NTP time", ErrInvalidPacket, xmt.Seconds)
	}

	unixSeconds := int64(xmt.Seconds) - UnixEraOffset
	if unixSeconds < MinEpoch || unixSeconds > MaxEpoch {
		return nil, fmt.Errorf("%w: epoch %d outside [%d, %d]", ErrInvalidPacket, unixSeconds, MinEpoch, MaxEpoch)
	}

	return &Response{
		Packet:       *packet,
		UnixSeconds:  unixSeconds,
		Microseconds: FractionToMicros(xmt.Fraction),
	}, nil
}

func putTimestamp(b []byte, ts Timestamp) {
	binary.BigEndian.PutUint32(b[0:4], ts.Seconds)
	binary.BigEndian.PutUint32(b[4:8], ts.Fraction)
}

func readTimestamp(b []byte) Timestamp {
	return Timestamp{
		Seconds:  binary.BigEndian.Uint32(b[0:4]),
		Fraction: binary.BigEndian.Uint32(b[4:8]),
	}
}
