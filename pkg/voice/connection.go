// Package voice implements the voice-gateway v7 control connection: a
// WebSocket client that identifies, heartbeats, negotiates the UDP/SRTP
// transport, and keeps the session alive across resumable closes (§4.5).
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethan/discord-go-live/pkg/crypto"
	"github.com/ethan/discord-go-live/pkg/transport"
	"github.com/ethan/discord-go-live/pkg/voiceerr"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Socket is the UDP transport primitive a Connection needs once it knows
// the voice server's UDP endpoint from READY: IP discovery and an ordered
// send. *transport.Socket satisfies this.
type Socket interface {
	Discover(ctx context.Context, audioSSRC uint32) (transport.Endpoint, error)
	Send(packet []byte) error
	Close() error
}

// DialUDP dials a UDP socket to the voice server's address (host:port, as
// given in READY). Bound to transport.Dial by the caller.
type DialUDP func(ctx context.Context, serverAddr string) (Socket, error)

// Options configures a Connection for one voice session.
type Options struct {
	Video           bool
	ForceChaCha20   bool
	Logger          *slog.Logger
	DialUDP         DialUDP
	OnUDPSocket     func(Socket)
	OnTerminalError func(error)
	OnOperational   func()
}

// Connection is a single voice-gateway v7 control connection, either the
// primary voice connection or a Go-Live sub-session (§4.6).
type Connection struct {
	opts    Options
	logger  *slog.Logger
	session *VoiceSession

	mu           sync.Mutex
	conn         *websocket.Conn
	udp          Socket
	state        State
	params       WebRtcParameters
	key          EncryptionKey
	speaking     bool
	videoEnabled bool

	protocolAckCh chan struct{}
	resumedCh     chan struct{}

	heartbeatStop chan struct{}
	heartbeatWg   sync.WaitGroup

	// resumeLimiter bounds how often a resumable close may trigger a
	// reconnect+RESUME attempt, so a flapping gateway can't be hammered by a
	// tight close/resume/close loop (§9 resume backoff).
	resumeLimiter *rate.Limiter

	stopOnce sync.Once
	stopped  chan struct{}
}

// resumeRate and resumeBurst bound reconnect attempts triggered by
// resumable closes: at most resumeBurst immediately, then one every
// resumeRate.
const (
	resumeRate  = 500 * time.Millisecond
	resumeBurst = 3
)

// New constructs a Connection bound to session.
func New(session *VoiceSession, opts Options) *Connection {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Connection{
		opts:          opts,
		logger:        opts.Logger.With("component", "voice_connection"),
		session:       session,
		state:         StateDisconnected,
		videoEnabled:  opts.Video,
		resumeLimiter: rate.NewLimiter(rate.Every(resumeRate), resumeBurst),
		stopped:       make(chan struct{}),
	}
}

// State returns the connection's current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("voice connection state transition", "from", prev, "to", s)
	}
}

// Params returns the negotiated WebRtcParameters. Valid once the
// connection has reached ReadyReceived or later.
func (c *Connection) Params() WebRtcParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// Key returns the negotiated EncryptionKey. Valid once the connection has
// reached ProtocolAcked or later.
func (c *Connection) Key() EncryptionKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Start dials the voice gateway, identifies, waits for the UDP handshake
// and protocol selection to complete, and returns once Operational. The
// caller must have already satisfied session.Ready() (setSession +
// setTokens).
func (c *Connection) Start(ctx context.Context) error {
	if !c.session.Ready() {
		return voiceerr.ProtocolState(fmt.Errorf("start called before session and tokens are set"))
	}

	c.setState(StateConnecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL(c.session.ServerURL), nil)
	if err != nil {
		return voiceerr.Handshake(fmt.Errorf("dial voice gateway: %w", err))
	}

	c.mu.Lock()
	c.conn = conn
	c.protocolAckCh = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop()

	c.setState(StateIdentifying)
	if err := c.sendIdentify(); err != nil {
		return err
	}

	select {
	case <-c.protocolAckChSnapshot():
		c.setState(StateOperational)
		if c.opts.OnOperational != nil {
			c.opts.OnOperational()
		}
		return nil
	case <-ctx.Done():
		return voiceerr.ProtocolState(fmt.Errorf("start cancelled: %w", ctx.Err()))
	case <-c.stopped:
		return voiceerr.ProtocolState(fmt.Errorf("connection stopped during start"))
	}
}

func (c *Connection) protocolAckChSnapshot() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocolAckCh
}

func gatewayURL(endpoint string) string {
	return "wss://" + endpoint + "/?v=7"
}

func (c *Connection) sendIdentify() error {
	payload := identifyPayload{
		ServerID:  c.session.GuildID,
		UserID:    c.session.UserID,
		SessionID: c.session.SessionID,
		Token:     c.session.Token,
		Video:     c.videoEnabled,
	}
	return c.send(OpIdentify, payload)
}

func (c *Connection) send(op int, payload any) error {
	b, err := encodeFrame(op, payload)
	if err != nil {
		return fmt.Errorf("encode frame op=%d: %w", op, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return voiceerr.ProtocolState(fmt.Errorf("send op=%d before connected", op))
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("write frame op=%d: %w", op, err)
	}
	return nil
}

// readLoop pumps incoming frames until the socket closes.
func (c *Connection) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		c.handleFrame(msg)
	}
}

func (c *Connection) handleFrame(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logger.Warn("voice connection: malformed frame", "error", err)
		return
	}

	switch f.Op {
	case OpHello:
		c.handleHello(f.D)
	case OpReady:
		c.handleReady(f.D)
	case OpSelectProtocolAck:
		c.handleSelectProtocolAck(f.D)
	case OpResumed:
		c.handleResumed()
	case OpHeartbeatAck, OpSpeaking:
		// Acknowledged, no action required.
	default:
		c.logger.Debug("voice connection: unhandled opcode", "op", f.Op)
	}
}

func (c *Connection) handleHello(d json.RawMessage) {
	var p helloPayload
	if err := json.Unmarshal(d, &p); err != nil {
		c.logger.Warn("voice connection: malformed HELLO", "error", err)
		return
	}
	c.setState(StateHelloReceived)
	c.startHeartbeat(time.Duration(p.HeartbeatIntervalMs) * time.Millisecond)
	c.setState(StateIdentified)
}

func (c *Connection) handleReady(d json.RawMessage) {
	var p readyPayload
	if err := json.Unmarshal(d, &p); err != nil {
		c.logger.Warn("voice connection: malformed READY", "error", err)
		return
	}

	c.mu.Lock()
	c.params = WebRtcParameters{
		PeerIP:         p.IP,
		PeerPort:       p.Port,
		AudioSSRC:      p.SSRC,
		SupportedModes: p.Modes,
	}
	c.mu.Unlock()
	c.setState(StateReadyReceived)

	go c.performUDPHandshakeAndSelectProtocol()
}

func (c *Connection) performUDPHandshakeAndSelectProtocol() {
	c.setState(StateUdpHandshaking)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	params := c.Params()
	serverAddr := fmt.Sprintf("%s:%d", params.PeerIP, params.PeerPort)

	udp, err := c.opts.DialUDP(ctx, serverAddr)
	if err != nil {
		c.fail(voiceerr.Handshake(fmt.Errorf("dial voice UDP socket: %w", err)))
		return
	}
	c.mu.Lock()
	c.udp = udp
	c.mu.Unlock()
	if c.opts.OnUDPSocket != nil {
		c.opts.OnUDPSocket(udp)
	}

	ep, err := udp.Discover(ctx, params.AudioSSRC)
	if err != nil {
		c.fail(voiceerr.Handshake(fmt.Errorf("UDP IP discovery: %w", err)))
		return
	}

	mode := selectEncryptionMode(params, c.opts.ForceChaCha20)

	c.setState(StateSelectingProtocol)
	sp := selectProtocolPayload{Protocol: "udp", Codecs: codecCatalog()}
	sp.Data.Address = ep.IP
	sp.Data.Port = int(ep.Port)
	sp.Data.Mode = string(mode)

	if err := c.send(OpSelectProtocol, sp); err != nil {
		c.fail(voiceerr.Handshake(fmt.Errorf("send SELECT_PROTOCOL: %w", err)))
	}
}

// selectEncryptionMode implements the §4.1 preference: AES-256-GCM unless
// the peer doesn't advertise it or forceChaCha20 is set.
func selectEncryptionMode(params WebRtcParameters, forceChaCha20 bool) crypto.Mode {
	if !forceChaCha20 && params.SupportsMode(crypto.ModeAES256GCM) {
		return crypto.ModeAES256GCM
	}
	return crypto.ModeXChaCha20Poly1305
}

func (c *Connection) handleSelectProtocolAck(d json.RawMessage) {
	var p selectProtocolAckPayload
	if err := json.Unmarshal(d, &p); err != nil {
		c.fail(voiceerr.Handshake(fmt.Errorf("malformed SELECT_PROTOCOL_ACK: %w", err)))
		return
	}

	var key [32]byte
	for i := 0; i < len(key) && i < len(p.SecretKey); i++ {
		key[i] = byte(p.SecretKey[i])
	}

	c.mu.Lock()
	c.key = EncryptionKey{Master: key, Mode: crypto.Mode(p.Mode)}
	ackCh := c.protocolAckCh
	c.mu.Unlock()

	c.setState(StateProtocolAcked)
	if ackCh != nil {
		close(ackCh)
	}
}

func (c *Connection) handleResumed() {
	c.setState(StateOperational)
	c.mu.Lock()
	resumedCh := c.resumedCh
	c.mu.Unlock()
	if resumedCh != nil {
		close(resumedCh)
	}
}

// fail reports a terminal error to the owning controller and marks the
// connection closed.
func (c *Connection) fail(err error) {
	c.setState(StateClosed)
	if c.opts.OnTerminalError != nil {
		c.opts.OnTerminalError(err)
	}
}

// SetSpeaking sends the SPEAKING opcode.
func (c *Connection) SetSpeaking(speaking bool) error {
	c.mu.Lock()
	c.speaking = speaking
	ssrc := c.params.AudioSSRC
	c.mu.Unlock()

	v := 0
	if speaking {
		v = 1
	}
	return c.send(OpSpeaking, speakingPayload{Speaking: v, Delay: 0, SSRC: ssrc})
}

// VideoStatusParams describes the simulcast descriptor sent with the VIDEO
// opcode (§4.5).
type VideoStatusParams struct {
	MaxBitrateKbps int
	FPS            int
	Width          int
	Height         int
}

// SetVideoStatus sends the VIDEO opcode. When enabled is false the SSRCs
// are sent as 0 per §4.5.
func (c *Connection) SetVideoStatus(enabled bool, params VideoStatusParams) error {
	c.mu.Lock()
	c.videoEnabled = enabled
	audioSSRC, videoSSRC, rtxSSRC := c.params.AudioSSRC, c.params.VideoSSRC, c.params.RTXSSRC
	c.mu.Unlock()

	payload := videoPayload{AudioSSRC: audioSSRC}
	if enabled {
		payload.VideoSSRC = videoSSRC
		payload.RTXSSRC = rtxSSRC
		layer := videoSimulcastLayer{
			Type:         "video",
			RID:          "100",
			Quality:      100,
			SSRC:         videoSSRC,
			RTXSSRC:      rtxSSRC,
			MaxBitrate:   params.MaxBitrateKbps * 1000,
			MaxFramerate: params.FPS,
		}
		layer.MaxResolution.Type = "fixed"
		layer.MaxResolution.Width = params.Width
		layer.MaxResolution.Height = params.Height
		payload.Streams = []videoSimulcastLayer{layer}
	}
	return c.send(OpVideo, payload)
}

// Stop closes the control connection. Idempotent.
func (c *Connection) Stop() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopped)
		c.stopHeartbeat()

		c.mu.Lock()
		conn := c.conn
		udp := c.udp
		c.mu.Unlock()
		if conn != nil {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			err = conn.Close()
		}
		if udp != nil {
			_ = udp.Close()
		}
		c.setState(StateClosed)
	})
	return err
}
