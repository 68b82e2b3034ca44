package rtp

import (
	"log/slog"

	"github.com/ethan/discord-go-live/pkg/crypto"
)

// OpusPacketizer emits one RTP packet per encoded Opus frame: marker set,
// no fragmentation, no extension header (§4.3, §9 resolution #3).
type OpusPacketizer struct {
	base *Base
}

// NewOpusPacketizer constructs an Opus packetizer for the given SSRC.
func NewOpusPacketizer(ssrc uint32, srEnabled bool, mtu int, enc crypto.Encryptor, sender Sender, logger *slog.Logger) *OpusPacketizer {
	return &OpusPacketizer{
		base: NewBase(ssrc, PayloadTypeOpus, ClockRateOpus, defaultAudioSRInterval, mtu, srEnabled, enc, sender, logger),
	}
}

// SendFrame sends a single Opus packet for payload and advances the RTP
// timestamp by frametimeMs worth of 48kHz ticks.
func (p *OpusPacketizer) SendFrame(payload []byte, frametimeMs float64) error {
	if len(payload) == 0 {
		return nil
	}
	err := p.base.SendChunk(payload, true, false)
	p.base.AdvanceTimestamp(frametimeMs)
	return err
}

// Stats returns a snapshot of the stream state for observability.
func (p *OpusPacketizer) Stats() StreamState { return p.base.State }

// SSRC returns the stream's SSRC.
func (p *OpusPacketizer) SSRC() uint32 { return p.base.State.SSRC }
