package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethan/discord-go-live/pkg/crypto"
	"github.com/ethan/discord-go-live/pkg/pacing"
	"github.com/ethan/discord-go-live/pkg/rtp"
	"github.com/ethan/discord-go-live/pkg/voice"
	"github.com/ethan/discord-go-live/pkg/voiceerr"
	"github.com/google/uuid"
)

// VideoPacketizer is satisfied by every codec packetizer in pkg/rtp that
// formats video.
type VideoPacketizer interface {
	SendFrame(payload []byte, frametimeMs float64) error
	Stats() rtp.StreamState
	SSRC() uint32
}

// Encoder is the external transcoder process handle; out of scope beyond
// the lifecycle hook Stop needs (§1, §7 Encoder errors).
type Encoder interface {
	Close() error
}

// Controller orchestrates one streaming session end to end: join voice,
// optionally open a Go-Live sub-session, wire the demuxer's encoded
// packets through pacing streams into packetizers, and expose
// pause/resume/stop (§4.6).
type Controller struct {
	opts StreamOptions
	// correlationID identifies this controller instance across its own log
	// lines; it has no protocol meaning and is never sent over the wire
	// (the server-assigned stream_key from signaling is the wire identity).
	correlationID uuid.UUID
	logger        *slog.Logger

	mu         sync.Mutex
	voiceConn  *voice.Connection
	goLiveConn *voice.Connection
	udp        voice.Socket
	encryptor  crypto.Encryptor
	encoder    Encoder

	videoPacketizer VideoPacketizer
	audioPacketizer *rtp.OpusPacketizer
	videoStream     *pacing.Stream
	audioStream     *pacing.Stream

	paramSets rtp.ParameterSets

	started   atomic.Bool
	stopOnce  sync.Once
	startTime time.Time

	videoFrames atomic.Uint64
	audioFrames atomic.Uint64
}

// New constructs a Controller. opts must pass Validate.
func New(opts StreamOptions, logger *slog.Logger) (*Controller, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	correlationID := uuid.New()
	return &Controller{
		opts:          opts,
		correlationID: correlationID,
		logger:        logger.With("component", "streaming_controller", "controller_id", correlationID),
	}, nil
}

// JoinVoice opens the primary voice control connection and blocks until it
// reaches Operational, wiring the shared UDP socket and packetizers once
// the SRTP parameters are known.
func (c *Controller) JoinVoice(ctx context.Context, session *voice.VoiceSession, dialUDP voice.DialUDP) error {
	ready := make(chan struct{})
	conn := voice.New(session, voice.Options{
		Video:           false,
		ForceChaCha20:   c.opts.ForceChaCha20,
		Logger:          c.logger,
		DialUDP:         dialUDP,
		OnUDPSocket:     c.setUDPSocket,
		OnTerminalError: c.handleTerminalError,
		OnOperational:   func() { close(ready) },
	})

	c.mu.Lock()
	c.voiceConn = conn
	c.mu.Unlock()

	if err := conn.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return voiceerr.ProtocolState(fmt.Errorf("join voice cancelled: %w", ctx.Err()))
	}

	return c.wireMedia(conn)
}

// OpenGoLive opens a second control connection for the Go-Live sub-session
// described by session (§4.6). Its UDP socket is whatever dialUDP returns
// once READY arrives; the controller does not check whether that socket is
// distinct from the primary voice connection's.
func (c *Controller) OpenGoLive(ctx context.Context, session *voice.VoiceSession, dialUDP voice.DialUDP) error {
	ready := make(chan struct{})
	conn := voice.New(session, voice.Options{
		Video:           true,
		ForceChaCha20:   c.opts.ForceChaCha20,
		Logger:          c.logger,
		DialUDP:         dialUDP,
		OnUDPSocket:     c.setUDPSocket,
		OnTerminalError: c.handleTerminalError,
		OnOperational:   func() { close(ready) },
	})

	c.mu.Lock()
	c.goLiveConn = conn
	c.mu.Unlock()

	if err := conn.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return voiceerr.ProtocolState(fmt.Errorf("open go-live cancelled: %w", ctx.Err()))
	}

	if err := c.wireMedia(conn); err != nil {
		return err
	}
	return conn.SetVideoStatus(true, voice.VideoStatusParams{
		MaxBitrateKbps: c.opts.MaxBitrateKbps,
		FPS:            c.opts.FPS,
		Width:          c.opts.Width,
		Height:         c.opts.Height,
	})
}

func (c *Controller) setUDPSocket(sock voice.Socket) {
	c.mu.Lock()
	c.udp = sock
	c.mu.Unlock()
}

// wireMedia builds the AEAD encryptor and per-codec packetizers from conn's
// negotiated parameters and attaches fresh pacing streams in front of them.
func (c *Controller) wireMedia(conn *voice.Connection) error {
	key := conn.Key()
	params := conn.Params()

	c.mu.Lock()
	udp := c.udp
	c.mu.Unlock()
	if udp == nil {
		return voiceerr.ProtocolState(fmt.Errorf("wire media before UDP socket is ready"))
	}

	enc, err := crypto.New(key.Mode, key.Master[:])
	if err != nil {
		return err
	}

	videoPacketizer, err := c.newVideoPacketizer(params.VideoSSRC, enc, udp)
	if err != nil {
		return err
	}
	audioPacketizer := rtp.NewOpusPacketizer(params.AudioSSRC, c.opts.RTCPSREnabled, rtp.DefaultMTU, enc, udp, c.logger)

	videoStream := pacing.NewStream("video", videoPacketizer, pacing.DefaultSyncToleranceMs, false, c.logger)
	audioStream := pacing.NewStream("audio", audioPacketizer, pacing.DefaultSyncToleranceMs, false, c.logger)
	videoStream.SetSyncPeer(audioStream)
	audioStream.SetSyncPeer(videoStream)

	c.mu.Lock()
	c.encryptor = enc
	c.videoPacketizer = videoPacketizer
	c.audioPacketizer = audioPacketizer
	c.videoStream = videoStream
	c.audioStream = audioStream
	c.mu.Unlock()

	c.started.Store(true)
	c.startTime = time.Now()
	videoStream.Start()
	audioStream.Start()
	return nil
}

func (c *Controller) newVideoPacketizer(ssrc uint32, enc crypto.Encryptor, sender rtp.Sender) (VideoPacketizer, error) {
	switch c.opts.VideoCodec {
	case VideoCodecH264:
		return rtp.NewH264Packetizer(ssrc, c.opts.FPS, c.opts.RTCPSREnabled, rtp.DefaultMTU, c.paramSets, enc, sender, c.logger), nil
	case VideoCodecH265:
		return rtp.NewH265Packetizer(ssrc, c.opts.FPS, c.opts.RTCPSREnabled, rtp.DefaultMTU, c.paramSets, enc, sender, c.logger), nil
	case VideoCodecVP8:
		return rtp.NewVP8Packetizer(ssrc, c.opts.FPS, c.opts.RTCPSREnabled, rtp.DefaultMTU, enc, sender, c.logger), nil
	default:
		return nil, voiceerr.Config(fmt.Errorf("video codec %s has no packetizer implementation", c.opts.VideoCodec))
	}
}

// SetParameterSets installs the parameter sets parsed from the demuxer's
// container extradata, referenced on every IDR video frame (§3). The sets
// are copied into the H.264/H.265 packetizer when JoinVoice or OpenGoLive
// wires media; sets installed after that do not reach the packetizer.
func (c *Controller) SetParameterSets(sets rtp.ParameterSets) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paramSets = sets
}

// SetEncoder registers the external transcoder's lifecycle handle so Stop
// can close it.
func (c *Controller) SetEncoder(e Encoder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoder = e
}

// PushVideo forwards one decoded video access unit through the video
// pacing stream. Blocks the caller until the frame has been released.
func (c *Controller) PushVideo(pkt pacing.EncodedPacket) error {
	stream := c.snapshotVideoStream()
	if stream == nil {
		return voiceerr.ProtocolState(fmt.Errorf("push video before streaming started"))
	}
	c.videoFrames.Add(1)
	return stream.Forward(pkt)
}

// PushAudio forwards one decoded Opus frame through the audio pacing
// stream. Blocks the caller until the frame has been released.
func (c *Controller) PushAudio(pkt pacing.EncodedPacket) error {
	stream := c.snapshotAudioStream()
	if stream == nil {
		return voiceerr.ProtocolState(fmt.Errorf("push audio before streaming started"))
	}
	c.audioFrames.Add(1)
	return stream.Forward(pkt)
}

func (c *Controller) snapshotVideoStream() *pacing.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoStream
}

func (c *Controller) snapshotAudioStream() *pacing.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioStream
}

// Pause pauses both pacing streams.
func (c *Controller) Pause() {
	c.mu.Lock()
	v, a := c.videoStream, c.audioStream
	c.mu.Unlock()
	if v != nil {
		v.Pause()
	}
	if a != nil {
		a.Pause()
	}
}

// Resume resumes both pacing streams.
func (c *Controller) Resume() {
	c.mu.Lock()
	v, a := c.videoStream, c.audioStream
	c.mu.Unlock()
	if v != nil {
		v.Resume()
	}
	if a != nil {
		a.Resume()
	}
}

// Stop tears the session down. Idempotent: detaches pacing streams, closes
// the encoder, clears speaking/video status, closes control sockets, and
// releases the UDP socket (§4.6).
func (c *Controller) Stop() error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.mu.Lock()
		v, a := c.videoStream, c.audioStream
		voiceConn, goLiveConn := c.voiceConn, c.goLiveConn
		encoder := c.encoder
		udp := c.udp
		c.mu.Unlock()

		if v != nil {
			v.SetSyncPeer(nil)
			v.Stop()
		}
		if a != nil {
			a.SetSyncPeer(nil)
			a.Stop()
		}

		if encoder != nil {
			if err := encoder.Close(); err != nil {
				c.logger.Warn("streaming controller: encoder close failed", "error", err)
			}
		}

		if voiceConn != nil {
			_ = voiceConn.SetSpeaking(false)
			_ = voiceConn.SetVideoStatus(false, voice.VideoStatusParams{})
			if err := voiceConn.Stop(); err != nil {
				c.logger.Warn("streaming controller: voice connection stop failed", "error", err)
				stopErr = err
			}
		}
		if goLiveConn != nil {
			_ = goLiveConn.SetVideoStatus(false, voice.VideoStatusParams{})
			if err := goLiveConn.Stop(); err != nil {
				c.logger.Warn("streaming controller: go-live connection stop failed", "error", err)
				if stopErr == nil {
					stopErr = err
				}
			}
		}

		// voiceConn/goLiveConn.Stop() already releases the UDP socket they
		// own; this covers the camera-mode case where the controller holds
		// a reference without a dedicated owning connection.
		if udp != nil && voiceConn == nil && goLiveConn == nil {
			_ = udp.Close()
		}

		c.logger.Info("streaming controller stopped",
			"uptime", time.Since(c.startTime),
			"video_frames", c.videoFrames.Load(),
			"audio_frames", c.audioFrames.Load())
	})
	return stopErr
}

func (c *Controller) handleTerminalError(err error) {
	c.logger.Error("streaming controller: terminal control-plane error", "error", err)
	_ = c.Stop()
}
