package rtp

import (
	"fmt"
	"time"

	"github.com/ethan/discord-go-live/pkg/crypto"
	"github.com/ethan/discord-go-live/pkg/voiceerr"
	"github.com/pion/rtcp"
)

// ntpUnixEpochOffset is the number of seconds between the NTP epoch
// (1900-01-01 UTC) and the Unix epoch (1970-01-01 UTC).
const ntpUnixEpochOffset = 2208988800

// sendSenderReport builds and SRTP-protects an RTCP Sender Report for this
// stream's last-packet wall time and counters, per §4.3.
func (b *Base) sendSenderReport() error {
	sr := &rtcp.SenderReport{
		SSRC:        b.State.SSRC,
		NTPTime:     toNTP64(b.State.LastPacketWallTime),
		RTPTime:     b.State.Timestamp,
		PacketCount: b.State.TotalPackets,
		OctetCount:  b.State.TotalBytes,
	}
	wire, err := sr.Marshal()
	if err != nil {
		return fmt.Errorf("marshal RTCP sender report: %w", err)
	}

	// RTCP header/body split: the first 8 bytes (version/PT/length/SSRC) ride
	// as AAD, matching the SRTP convention this module's RTP path already
	// uses for its own headers; the remaining report fields are encrypted.
	const rtcpHeaderLen = 8
	header, body := wire[:rtcpHeaderLen], wire[rtcpHeaderLen:]

	ciphertext, nonce, err := b.Enc.Encrypt(body, header)
	if err != nil {
		return voiceerr.AEAD(fmt.Errorf("encrypt RTCP sender report: %w", err))
	}

	packet := make([]byte, 0, len(header)+len(ciphertext)+crypto.TruncatedNonceLen)
	packet = append(packet, header...)
	packet = append(packet, ciphertext...)
	packet = append(packet, crypto.TruncatedNonce(nonce)...)

	return b.Sender.Send(packet)
}

// toNTP64 converts a wall-clock time to a 64-bit 32.32 fixed-point NTP
// timestamp (seconds since 1900-01-01 UTC in the high word, fractional
// seconds in the low word), the representation rtcp.SenderReport.NTPTime
// expects.
func toNTP64(t time.Time) uint64 {
	msw, lsw := toNTP(t)
	return uint64(msw)<<32 | uint64(lsw)
}

// toNTP converts a wall-clock time to 32.32 fixed-point NTP seconds since
// 1900-01-01 UTC: MSW = floor(seconds), LSW = round(frac * 2^32).
func toNTP(t time.Time) (msw, lsw uint32) {
	whole := uint32(t.Unix() + ntpUnixEpochOffset)
	frac := (uint64(t.Nanosecond())<<32 + 500_000_000) / 1_000_000_000
	return whole, uint32(frac)
}
