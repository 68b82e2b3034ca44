// Package stream implements the Streaming Controller: it joins voice,
// optionally opens a Go-Live sub-session, wires demuxer output to pacing
// streams and packetizers, and exposes pause/resume/stop to the caller
// (§4.6).
package stream

import (
	"fmt"

	"github.com/ethan/discord-go-live/pkg/voiceerr"
)

// VideoCodec enumerates the video codecs a StreamOptions may select.
// VP9 and AV1 are part of the codec catalog advertised on SELECT_PROTOCOL
// but have no packetizer implementation here, so Validate rejects them.
type VideoCodec string

const (
	VideoCodecH264 VideoCodec = "H264"
	VideoCodecH265 VideoCodec = "H265"
	VideoCodecVP8  VideoCodec = "VP8"
	VideoCodecVP9  VideoCodec = "VP9"
	VideoCodecAV1  VideoCodec = "AV1"
)

// StreamOptions configures one Go-Live/camera session. Immutable after
// setProtocols succeeds (§3).
type StreamOptions struct {
	Width  int
	Height int
	FPS    int

	AvgBitrateKbps int
	MaxBitrateKbps int

	VideoCodec VideoCodec

	RTCPSREnabled   bool
	ForceChaCha20   bool
	MinimizeLatency bool

	// H26xPreset is an encoder speed/quality preset hint (e.g. "ultrafast",
	// "veryfast"); passed through to the external encoder, not interpreted
	// here.
	H26xPreset string
}

// DefaultStreamOptions returns a StreamOptions with commonly-used values;
// callers are expected to override Width/Height/FPS/bitrates per session.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		Width:          1280,
		Height:         720,
		FPS:            30,
		AvgBitrateKbps: 2000,
		MaxBitrateKbps: 2500,
		VideoCodec:     VideoCodecH264,
		RTCPSREnabled:  true,
	}
}

// Validate checks that the options describe an implementable session.
func (o StreamOptions) Validate() error {
	switch o.VideoCodec {
	case VideoCodecH264, VideoCodecH265, VideoCodecVP8:
		// Supported.
	case VideoCodecVP9, VideoCodecAV1:
		return voiceerr.Config(fmt.Errorf("video codec %s has no packetizer implementation", o.VideoCodec))
	default:
		return voiceerr.Config(fmt.Errorf("unknown video codec %q", o.VideoCodec))
	}
	if o.Width <= 0 || o.Height <= 0 {
		return voiceerr.Config(fmt.Errorf("invalid resolution %dx%d", o.Width, o.Height))
	}
	if o.FPS <= 0 {
		return voiceerr.Config(fmt.Errorf("invalid fps %d", o.FPS))
	}
	if o.MaxBitrateKbps <= 0 {
		return voiceerr.Config(fmt.Errorf("invalid max bitrate %d kbps", o.MaxBitrateKbps))
	}
	return nil
}
