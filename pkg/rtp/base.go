// Package rtp implements the RTP packetizers described in §4.3: a shared
// base (header assembly, MTU chunking, SRTP encryption, RTCP Sender
// Reports) plus one formatter per supported codec.
package rtp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethan/discord-go-live/pkg/crypto"
	"github.com/ethan/discord-go-live/pkg/voiceerr"
	pionrtp "github.com/pion/rtp"
)

// Fixed RTP payload types (§4.3, §6 codec catalog). Not negotiated beyond
// SELECT_PROTOCOL's codec catalog.
const (
	PayloadTypeOpus = 120
	PayloadTypeH264 = 101
	PayloadTypeH265 = 103
	PayloadTypeVP8  = 105
	PayloadTypeVP9  = 107
	PayloadTypeAV1  = 109
)

const (
	// DefaultMTU is the default size, in bytes, of RTP payload per packet.
	DefaultMTU = 1200

	// ClockRateOpus and ClockRateVideo are the RTP timestamp clock rates
	// used to convert frame duration into timestamp ticks (§4.3).
	ClockRateOpus  = 48000
	ClockRateVideo = 90000

	extensionProfileOneByte  = 0xBEDE
	playoutDelayExtensionID  = 5
	playoutDelayExtensionLen = 2

	// defaultAudioSRInterval approximates 5s of SR cadence at 20ms Opus
	// frames (§3, §9 open question #2: SR cadence scales with frame time;
	// callers with a different frame time should scale this accordingly).
	defaultAudioSRInterval = 250
)

// DefaultVideoSRInterval approximates 5s of SR cadence at fps frames per
// second and ~3 RTP packets per video frame (§3).
func DefaultVideoSRInterval(fps int) uint32 {
	if fps <= 0 {
		fps = 30
	}
	return uint32(5 * fps * 3)
}

// Sender abstracts the UDP transport's ordered send primitive so
// packetizers can be tested without a real socket (§4.2).
type Sender interface {
	Send(packet []byte) error
}

// StreamState is the per-SSRC counters and identity owned by a single
// pacing stream (§3 RtpStreamState). It must only ever be mutated by the
// goroutine that owns the packetizer (§5) — never call a packetizer's
// SendFrame concurrently for the same SSRC.
type StreamState struct {
	SSRC                uint32
	PayloadType         uint8
	Sequence            uint16
	Timestamp           uint32
	TotalPackets        uint32
	TotalBytes          uint32
	PrevSRPacketBucket  uint32
	LastPacketWallTime  time.Time
	SRInterval          uint32
	MTU                 int
}

// Base implements the shared per-packet contract of §4.3 steps 1-6: MTU
// chunking, header assembly, SRTP encryption, ordered send, counter
// bookkeeping and periodic RTCP Sender Reports. Codec packetizers embed it
// and drive it once per RTP packet they need to emit.
type Base struct {
	State     StreamState
	Enc       crypto.Encryptor
	Sender    Sender
	SREnabled bool
	ClockRate uint32
	Logger    *slog.Logger
}

// NewBase constructs a Base packetizer. mtu <= 0 selects DefaultMTU.
func NewBase(ssrc uint32, payloadType uint8, clockRate uint32, srInterval uint32, mtu int, srEnabled bool, enc crypto.Encryptor, sender Sender, logger *slog.Logger) *Base {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Base{
		State: StreamState{
			SSRC:        ssrc,
			PayloadType: payloadType,
			MTU:         mtu,
			SRInterval:  srInterval,
		},
		Enc:       enc,
		Sender:    sender,
		SREnabled: srEnabled,
		ClockRate: clockRate,
		Logger:    logger,
	}
}

// SendChunk assembles one RTP packet for a single MTU-sized payload chunk,
// SRTP-encrypts it and hands it to the Sender in order. withExtension must
// be true for video packets and false for audio packets (§9 #3).
func (b *Base) SendChunk(payload []byte, marker bool, withExtension bool) error {
	header := pionrtp.Header{
		Version:        2,
		Padding:        false,
		Marker:         marker,
		PayloadType:    b.State.PayloadType,
		SequenceNumber: b.State.Sequence,
		Timestamp:      b.State.Timestamp,
		SSRC:           b.State.SSRC,
	}

	if withExtension {
		header.Extension = true
		header.ExtensionProfile = extensionProfileOneByte
		if err := header.SetExtension(playoutDelayExtensionID, []byte{0, 0}); err != nil {
			return fmt.Errorf("set playout-delay extension: %w", err)
		}
	}

	headerBytes, err := header.Marshal()
	if err != nil {
		return fmt.Errorf("marshal RTP header: %w", err)
	}

	ciphertext, nonce, err := b.Enc.Encrypt(payload, headerBytes)
	if err != nil {
		return voiceerr.AEAD(fmt.Errorf("encrypt RTP payload: %w", err))
	}

	packet := make([]byte, 0, len(headerBytes)+len(ciphertext)+crypto.TruncatedNonceLen)
	packet = append(packet, headerBytes...)
	packet = append(packet, ciphertext...)
	packet = append(packet, crypto.TruncatedNonce(nonce)...)

	if err := b.Sender.Send(packet); err != nil {
		// Send-path errors are logged and returned; the caller (pacing
		// stream) continues with subsequent frames per §7.
		if b.Logger != nil {
			b.Logger.Warn("rtp send failed", "ssrc", b.State.SSRC, "seq", b.State.Sequence, "error", err)
		}
	}

	b.State.Sequence++
	b.State.TotalPackets++
	b.State.TotalBytes += uint32(len(payload))
	b.State.LastPacketWallTime = time.Now()

	if b.SREnabled && b.State.SRInterval > 0 {
		bucket := b.State.TotalPackets / b.State.SRInterval
		if bucket > b.State.PrevSRPacketBucket {
			b.State.PrevSRPacketBucket = bucket
			if srErr := b.sendSenderReport(); srErr != nil && b.Logger != nil {
				b.Logger.Warn("rtcp sender report failed", "ssrc", b.State.SSRC, "error", srErr)
			}
		}
	}

	return err
}

// AdvanceTimestamp advances the RTP timestamp counter by the codec-specific
// increment for a frame of the given duration (§4.3 step 6): Opus uses
// 48kHz, video uses 90kHz.
func (b *Base) AdvanceTimestamp(frametimeMs float64) {
	delta := uint32(frametimeMs * float64(b.ClockRate) / 1000.0)
	b.State.Timestamp += delta
}

// Chunk splits payload into MTU-sized pieces (§4.3 step 1).
func Chunk(payload []byte, mtu int) [][]byte {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if len(payload) == 0 {
		return nil
	}
	var chunks [][]byte
	for offset := 0; offset < len(payload); offset += mtu {
		end := offset + mtu
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[offset:end])
	}
	return chunks
}
