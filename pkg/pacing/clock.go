// Package pacing schedules decoded media frames onto their packetizers in
// real time: it turns a sequence of EncodedPackets, arriving as fast as the
// demuxer can decode them, into a frame release cadence that tracks their
// presentation timestamps, with an optional sync-wait against a paired
// stream to keep audio and video within tolerance of each other.
//
// Grounded on the leaky-bucket pacer idiom (RTP-timestamp-delta delay
// calculation, catch-up, hard delay cap) but reworked to pace against
// presentation timestamps rather than RTP timestamps, since pacing runs
// upstream of packetization here.
package pacing

import "time"

// EncodedPacket is one decode-ordered unit handed to a pacing stream by the
// demuxer: payload bytes plus a fractional presentation timestamp expressed
// as a 64-bit hi:lo pair against a rational time base.
type EncodedPacket struct {
	Payload     []byte
	PTSHi       uint32
	PTS         uint32
	TimeBaseNum uint32
	TimeBaseDen uint32
	DurationMs  float64
	IsIDR       bool
}

// FramePtsMs returns the packet's presentation timestamp in milliseconds.
func (p EncodedPacket) FramePtsMs() float64 {
	combined := combineHiLo(p.PTSHi, p.PTS)
	if p.TimeBaseDen == 0 {
		return 0
	}
	return float64(combined) * float64(p.TimeBaseNum) / float64(p.TimeBaseDen) * 1000
}

func combineHiLo(hi, lo uint32) uint64 {
	return uint64(hi)<<32 | uint64(lo)
}

// DefaultSyncToleranceMs is the default allowed PTS drift between a pacing
// stream and its sync peer before the faster stream waits.
const DefaultSyncToleranceMs = 5.0

// PacingClock tracks the wall-clock/PTS relationship a stream uses to
// compute its next sleep. It is reset whenever a stream (re)starts or seeks.
type PacingClock struct {
	StartWall           time.Time
	StartWallSet        bool
	StartPtsMs          float64
	TotalPausedDuration time.Duration
	PauseStart          time.Time
	IsPaused            bool
	SyncToleranceMs     float64
}

// Reset clears the clock back to its unstarted state.
func (c *PacingClock) Reset(syncToleranceMs float64) {
	*c = PacingClock{SyncToleranceMs: syncToleranceMs}
}
