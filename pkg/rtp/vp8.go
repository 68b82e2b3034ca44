package rtp

import (
	"log/slog"

	"github.com/ethan/discord-go-live/pkg/crypto"
)

// vp8DescriptorLen is the length, in bytes, of the VP8 payload descriptor
// this packetizer emits: a fixed 0x80 0x80 prefix (X=1, I=1) followed by a
// 16-bit PictureID with the M bit set (§4.3).
const vp8DescriptorLen = 4

// VP8Packetizer packetizes VP8 frames with the RFC7741 payload descriptor
// and a 16-bit PictureID extension that increments once per frame and wraps
// modulo 2^16 (§4.3, §8 scenario: PictureID wraparound at 65,536 frames).
type VP8Packetizer struct {
	base      *Base
	pictureID uint16
}

// NewVP8Packetizer constructs a VP8 packetizer for the given SSRC.
func NewVP8Packetizer(ssrc uint32, fps int, srEnabled bool, mtu int, enc crypto.Encryptor, sender Sender, logger *slog.Logger) *VP8Packetizer {
	return &VP8Packetizer{
		base: NewBase(ssrc, PayloadTypeVP8, ClockRateVideo, DefaultVideoSRInterval(fps), mtu, srEnabled, enc, sender, logger),
	}
}

// Stats returns a snapshot of the stream state for observability.
func (p *VP8Packetizer) Stats() StreamState { return p.base.State }

// SSRC returns the stream's SSRC.
func (p *VP8Packetizer) SSRC() uint32 { return p.base.State.SSRC }

// SendFrame splits frame into MTU-sized chunks, prefixing each with a VP8
// payload descriptor (S bit set only on the first packet of the frame,
// shared PictureID across all packets of the frame), sends them with the
// marker bit set on the last packet, advances the PictureID and the RTP
// timestamp.
func (p *VP8Packetizer) SendFrame(frame []byte, frametimeMs float64) error {
	if len(frame) == 0 {
		return nil
	}

	payloadBudget := p.base.State.MTU - vp8DescriptorLen
	if payloadBudget <= 0 {
		payloadBudget = 1
	}
	chunks := Chunk(frame, payloadBudget)

	var firstErr error
	for i, chunk := range chunks {
		first := i == 0
		last := i == len(chunks)-1

		packet := make([]byte, 0, vp8DescriptorLen+len(chunk))
		packet = append(packet, buildVP8Descriptor(first, p.pictureID)...)
		packet = append(packet, chunk...)

		if err := p.base.SendChunk(packet, last, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.pictureID++ // wraps modulo 2^16 via uint16 overflow
	p.base.AdvanceTimestamp(frametimeMs)
	return firstErr
}

// buildVP8Descriptor builds the fixed 4-byte descriptor (RFC 7741 §4.2):
// byte0 sets X=1 (extended control bits follow) and S=1 on the first packet
// of the frame; byte1 sets I=1 (PictureID follows); bytes 2-3 carry the low
// 15 bits of pictureID with the M bit (extended form) set in the high bit.
func buildVP8Descriptor(firstPacketOfFrame bool, pictureID uint16) []byte {
	b0 := byte(0x80)
	if firstPacketOfFrame {
		b0 |= 0x10
	}
	b1 := byte(0x80)
	pidHi := byte(0x80 | (pictureID>>8)&0x7F)
	pidLo := byte(pictureID)
	return []byte{b0, b1, pidHi, pidLo}
}
