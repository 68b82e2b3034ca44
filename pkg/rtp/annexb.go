package rtp

import (
	"log/slog"

	"github.com/ethan/discord-go-live/pkg/crypto"
)

// H.264 NAL unit types (5-bit field).
const (
	h264NALUIDR = 5
	h264NALUSPS = 7
	h264NALUPPS = 8
	h264NALUFUA = 28
)

// H.265 NAL unit types (6-bit field).
const (
	h265NALUIDRWRADL = 19
	h265NALUIDRNLP   = 20
	h265NALUVPS      = 32
	h265NALUSPS      = 33
	h265NALUPPS      = 34
	h265NALUFU       = 49
)

// Codec identifies which Annex-B flavor a packetizer is configured for.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
)

// AnnexBPacketizer packetizes H.264 or H.265 Annex-B access units into
// Single NAL Unit Packets or FU-A/FU fragments (packetization-mode=1),
// injecting parameter sets ahead of IDR access units that lack them (§4.3).
type AnnexBPacketizer struct {
	base      *Base
	codec     Codec
	naluHdrLen int
	paramSets ParameterSets
}

// NewH264Packetizer constructs an Annex-B packetizer for H.264.
func NewH264Packetizer(ssrc uint32, fps int, srEnabled bool, mtu int, paramSets ParameterSets, enc crypto.Encryptor, sender Sender, logger *slog.Logger) *AnnexBPacketizer {
	return &AnnexBPacketizer{
		base:       NewBase(ssrc, PayloadTypeH264, ClockRateVideo, DefaultVideoSRInterval(fps), mtu, srEnabled, enc, sender, logger),
		codec:      CodecH264,
		naluHdrLen: 1,
		paramSets:  paramSets,
	}
}

// NewH265Packetizer constructs an Annex-B packetizer for H.265.
func NewH265Packetizer(ssrc uint32, fps int, srEnabled bool, mtu int, paramSets ParameterSets, enc crypto.Encryptor, sender Sender, logger *slog.Logger) *AnnexBPacketizer {
	return &AnnexBPacketizer{
		base:       NewBase(ssrc, PayloadTypeH265, ClockRateVideo, DefaultVideoSRInterval(fps), mtu, srEnabled, enc, sender, logger),
		codec:      CodecH265,
		naluHdrLen: 2,
		paramSets:  paramSets,
	}
}

// Stats returns a snapshot of the stream state for observability.
func (p *AnnexBPacketizer) Stats() StreamState { return p.base.State }

// SSRC returns the stream's SSRC.
func (p *AnnexBPacketizer) SSRC() uint32 { return p.base.State.SSRC }

// SendFrame splits an Annex-B access unit into NAL units, injects missing
// parameter sets ahead of IDR NALUs, fragments oversized NALUs into FU-A/FU
// packets, and sends them in order with the marker bit set only on the
// final RTP packet of the access unit (§4.3).
func (p *AnnexBPacketizer) SendFrame(payload []byte, frametimeMs float64) error {
	nalus := SplitAnnexB(payload)
	if len(nalus) == 0 {
		return nil
	}

	nalus = p.withInjectedParameterSets(nalus)

	var firstErr error
	for i, nalu := range nalus {
		last := i == len(nalus)-1
		if err := p.sendNALU(nalu, last); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.base.AdvanceTimestamp(frametimeMs)
	return firstErr
}

// withInjectedParameterSets prepends (V)SPS/PPS ahead of the access unit if
// it contains an IDR and lacks them, per the invariant in §3: "every IDR
// emitted on the wire is preceded in the same access unit by (VPS,)SPS,PPS
// if they were not already present in the bitstream."
func (p *AnnexBPacketizer) withInjectedParameterSets(nalus [][]byte) [][]byte {
	hasIDR := false
	haveVPS, haveSPS, havePPS := false, false, false

	for _, n := range nalus {
		if len(n) == 0 {
			continue
		}
		switch p.codec {
		case CodecH264:
			t := n[0] & 0x1F
			if t == h264NALUIDR {
				hasIDR = true
			}
			if t == h264NALUSPS {
				haveSPS = true
			}
			if t == h264NALUPPS {
				havePPS = true
			}
		case CodecH265:
			if len(n) < 2 {
				continue
			}
			t := (n[0] >> 1) & 0x3F
			if t == h265NALUIDRWRADL || t == h265NALUIDRNLP {
				hasIDR = true
			}
			if t == h265NALUVPS {
				haveVPS = true
			}
			if t == h265NALUSPS {
				haveSPS = true
			}
			if t == h265NALUPPS {
				havePPS = true
			}
		}
	}

	if !hasIDR {
		return nalus
	}

	var prefix [][]byte
	if p.codec == CodecH265 && !haveVPS {
		prefix = append(prefix, p.paramSets.VPS...)
	}
	if !haveSPS {
		prefix = append(prefix, p.paramSets.SPS...)
	}
	if !havePPS {
		prefix = append(prefix, p.paramSets.PPS...)
	}
	if len(prefix) == 0 {
		return nalus
	}

	out := make([][]byte, 0, len(prefix)+len(nalus))
	out = append(out, prefix...)
	out = append(out, nalus...)
	return out
}

// sendNALU sends a single NAL unit, fragmenting into FU-A/FU packets if it
// exceeds the MTU. isLastInAU gates the marker bit onto this NALU's final
// RTP packet.
func (p *AnnexBPacketizer) sendNALU(nalu []byte, isLastInAU bool) error {
	if len(nalu) == 0 {
		return nil
	}

	if len(nalu) <= p.base.State.MTU {
		return p.base.SendChunk(nalu, isLastInAU, true)
	}

	header := nalu[:p.naluHdrLen]
	body := nalu[p.naluHdrLen:]

	// Fragmentation unit indicator/header bytes are overhead not counted
	// against the payload budget below them.
	fragOverhead := p.naluHdrLen + 1 // FU indicator/header + (h265's extra type byte folded into naluHdrLen)
	maxFragSize := p.base.State.MTU - fragOverhead
	if maxFragSize <= 0 {
		maxFragSize = 1
	}

	fragments := Chunk(body, maxFragSize)

	var firstErr error
	for i, frag := range fragments {
		start := i == 0
		end := i == len(fragments)-1
		fu := p.buildFU(header, frag, start, end)
		marker := isLastInAU && end
		if err := p.base.SendChunk(fu, marker, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// buildFU assembles an FU-A (H.264) or FU (H.265) payload for one fragment.
func (p *AnnexBPacketizer) buildFU(originalHeader, fragment []byte, start, end bool) []byte {
	switch p.codec {
	case CodecH264:
		originalType := originalHeader[0] & 0x1F
		fuIndicator := (originalHeader[0] & 0xE0) | h264NALUFUA
		var fuHeader uint8
		if start {
			fuHeader |= 0x80
		}
		if end {
			fuHeader |= 0x40
		}
		// R bit (0x20) must be 0.
		fuHeader |= originalType

		out := make([]byte, 0, 2+len(fragment))
		out = append(out, fuIndicator, fuHeader)
		return append(out, fragment...)

	case CodecH265:
		originalType := (originalHeader[0] >> 1) & 0x3F
		// PayloadHdr: preserve F bit and layer-id high bit, type = FU (49).
		payloadHdr0 := (originalHeader[0] & 0x81) | (h265NALUFU << 1)
		payloadHdr1 := originalHeader[1]

		var fuHeader uint8
		if start {
			fuHeader |= 0x80
		}
		if end {
			fuHeader |= 0x40
		}
		fuHeader |= originalType

		out := make([]byte, 0, 3+len(fragment))
		out = append(out, payloadHdr0, payloadHdr1, fuHeader)
		return append(out, fragment...)
	}
	return nil
}

// SplitAnnexB splits an Annex-B bytestream into its constituent NAL units
// along start codes (00 00 01 or 00 00 00 01), stripping the start codes.
func SplitAnnexB(data []byte) [][]byte {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil
	}

	var nalus [][]byte
	for i, s := range starts {
		naluStart := s.offset + s.length
		naluEnd := len(data)
		if i+1 < len(starts) {
			naluEnd = starts[i+1].offset
		}
		if naluStart < naluEnd {
			nalus = append(nalus, data[naluStart:naluEnd])
		}
	}
	return nalus
}

type startCode struct {
	offset int
	length int
}

// findStartCodes locates every 00 00 01 start code in data, widening to a
// 4-byte 00 00 00 01 form when a leading zero precedes it.
func findStartCodes(data []byte) []startCode {
	var codes []startCode
	for i := 0; i+2 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 {
			continue
		}
		if i >= 1 && data[i-1] == 0 {
			codes = append(codes, startCode{offset: i - 1, length: 4})
		} else {
			codes = append(codes, startCode{offset: i, length: 3})
		}
		i += 2 // skip past this start code's 00 00 01
	}
	return codes
}
