package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethan/discord-go-live/pkg/crypto"
	"github.com/ethan/discord-go-live/pkg/transport"
	"github.com/gorilla/websocket"
)

func TestGatewayURL(t *testing.T) {
	got := gatewayURL("voice123.discord.media:443")
	want := "wss://voice123.discord.media:443/?v=7"
	if got != want {
		t.Errorf("gatewayURL() = %q, want %q", got, want)
	}
}

func TestSelectEncryptionMode(t *testing.T) {
	tests := []struct {
		name          string
		supported     []string
		forceChaCha20 bool
		want          crypto.Mode
	}{
		{"prefers AES-GCM when supported", []string{"aead_aes256_gcm_rtpsize", "aead_xchacha20_poly1305_rtpsize"}, false, crypto.ModeAES256GCM},
		{"falls back to ChaCha20 when AES-GCM unsupported", []string{"aead_xchacha20_poly1305_rtpsize"}, false, crypto.ModeXChaCha20Poly1305},
		{"force flag overrides AES-GCM support", []string{"aead_aes256_gcm_rtpsize"}, true, crypto.ModeXChaCha20Poly1305},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := WebRtcParameters{SupportedModes: tt.supported}
			if got := selectEncryptionMode(params, tt.forceChaCha20); got != tt.want {
				t.Errorf("selectEncryptionMode() = %q, want %q", got, tt.want)
			}
		})
	}
}

// fakeSocket is a test double for the Socket interface the control
// connection uses once it owns the UDP transport.
type fakeSocket struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	discEp  transport.Endpoint
	discErr error
}

func (f *fakeSocket) Discover(ctx context.Context, audioSSRC uint32) (transport.Endpoint, error) {
	return f.discEp, f.discErr
}

func (f *fakeSocket) Send(packet []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, packet)
	return nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// fakeGateway serves the voice-gateway v7 HELLO/READY/SELECT_PROTOCOL_ACK
// handshake over a plain (non-TLS) WebSocket, standing in for the real
// wss:// endpoint the production dialer targets.
type fakeGateway struct {
	t        *testing.T
	upgrader websocket.Upgrader
	server   *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{t: t}
	g.server = httptest.NewServer(http.HandlerFunc(g.serve))
	return g
}

func (g *fakeGateway) wsURL() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func (g *fakeGateway) close() { g.server.Close() }

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(frame{Op: OpHello, D: mustJSON(helloPayload{HeartbeatIntervalMs: 5000})}); err != nil {
		return
	}

	var identify frame
	if err := conn.ReadJSON(&identify); err != nil || identify.Op != OpIdentify {
		return
	}

	if err := conn.WriteJSON(frame{Op: OpReady, D: mustJSON(readyPayload{
		SSRC:  42,
		IP:    "203.0.113.10",
		Port:  5555,
		Modes: []string{"aead_aes256_gcm_rtpsize", "aead_xchacha20_poly1305_rtpsize"},
	})}); err != nil {
		return
	}

	var selectProtocol frame
	if err := conn.ReadJSON(&selectProtocol); err != nil || selectProtocol.Op != OpSelectProtocol {
		return
	}

	if err := conn.WriteJSON(frame{Op: OpSelectProtocolAck, D: mustJSON(selectProtocolAckPayload{
		SecretKey: make([]int, 32),
		Mode:      "aead_aes256_gcm_rtpsize",
	})}); err != nil {
		return
	}

	// Keep the connection open until the client hangs up so the test can
	// control the teardown sequence explicitly.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// TestConnection_HandshakeReachesOperational drives the control connection
// through HELLO -> IDENTIFY -> READY -> SELECT_PROTOCOL -> ACK against a
// fake gateway, bypassing the production wss:// dialer (gatewayURL hardcodes
// the scheme) by dialing the fake server directly and handing the resulting
// *websocket.Conn to the connection the same way Start() would.
func TestConnection_HandshakeReachesOperational(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.close()

	session := &VoiceSession{GuildID: "guild-1", UserID: "user-1"}
	session.SetSession("session-1")
	session.SetTokens("example.invalid", "token-1")

	udpSock := &fakeSocket{discEp: transport.Endpoint{IP: "198.51.100.1", Port: 6000}}
	operational := make(chan struct{})
	var terminalErr error

	conn := New(session, Options{
		DialUDP: func(ctx context.Context, addr string) (Socket, error) {
			return udpSock, nil
		},
		OnOperational: func() { close(operational) },
		OnTerminalError: func(err error) {
			terminalErr = err
		},
	})

	wsConn, _, err := websocket.DefaultDialer.Dial(gw.wsURL(), nil)
	if err != nil {
		t.Fatalf("dial fake gateway: %v", err)
	}

	conn.mu.Lock()
	conn.conn = wsConn
	conn.protocolAckCh = make(chan struct{})
	conn.mu.Unlock()

	conn.setState(StateIdentifying)
	go conn.readLoop()
	if err := conn.sendIdentify(); err != nil {
		t.Fatalf("sendIdentify: %v", err)
	}

	select {
	case <-operational:
	case <-time.After(5 * time.Second):
		t.Fatalf("connection did not reach operational (terminal error: %v)", terminalErr)
	}

	if got := conn.State(); got != StateOperational {
		t.Errorf("State() = %v, want operational", got)
	}
	if conn.Key().Mode != crypto.ModeAES256GCM {
		t.Errorf("negotiated mode = %q, want %q", conn.Key().Mode, crypto.ModeAES256GCM)
	}
	if conn.Params().AudioSSRC != 42 {
		t.Errorf("AudioSSRC = %d, want 42", conn.Params().AudioSSRC)
	}

	conn.Stop()
}

func TestCloseCode(t *testing.T) {
	if got := closeCode(errors.New("plain error")); got != -1 {
		t.Errorf("closeCode(plain) = %d, want -1", got)
	}
	ce := &websocket.CloseError{Code: 4015, Text: "disconnected"}
	if got := closeCode(ce); got != 4015 {
		t.Errorf("closeCode(CloseError) = %d, want 4015", got)
	}
}

func TestConnection_HandleClose_TerminalBeforeIdentified(t *testing.T) {
	session := &VoiceSession{}
	var terminalErr error
	done := make(chan struct{})
	conn := New(session, Options{
		OnTerminalError: func(err error) {
			terminalErr = err
			close(done)
		},
	})
	conn.setState(StateIdentifying)

	conn.handleClose(&websocket.CloseError{Code: 1006})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnTerminalError was not invoked")
	}
	if conn.State() != StateClosed {
		t.Errorf("State() = %v, want closed", conn.State())
	}
	if terminalErr == nil {
		t.Error("expected a non-nil terminal error")
	}
}

func TestConnection_HandleClose_ResumableAfterIdentified(t *testing.T) {
	session := &VoiceSession{ServerURL: "unreachable.invalid:443"}
	conn := New(session, Options{})
	conn.setState(StateOperational)

	conn.handleClose(&websocket.CloseError{Code: 4015})

	if conn.State() != StateResuming {
		t.Errorf("State() = %v, want resuming", conn.State())
	}
	if !conn.session.Resuming {
		t.Error("session.Resuming should be set while a resume attempt is in flight")
	}

	// The reconnect attempt runs in the background against an address that
	// cannot be dialed; stop the connection so the leaked goroutine exits
	// once its redial eventually fails instead of outliving the test.
	conn.Stop()
}

func TestConnection_HandleClose_ResumeRateExceededIsTerminal(t *testing.T) {
	// Drive the limiter directly rather than through repeated handleClose
	// calls, since each allowed call spawns a real background reconnect
	// goroutine whose own eventual failure would race this test's
	// OnTerminalError assertion.
	session := &VoiceSession{ServerURL: "unreachable.invalid:443"}
	var terminalCount int
	var mu sync.Mutex
	conn := New(session, Options{
		OnTerminalError: func(err error) {
			mu.Lock()
			terminalCount++
			mu.Unlock()
		},
	})
	conn.setState(StateOperational)

	for i := 0; i < resumeBurst; i++ {
		if !conn.resumeLimiter.Allow() {
			t.Fatalf("attempt %d: resume limiter should still have burst tokens", i)
		}
	}

	// The burst is now exhausted; the next resumable close should be
	// treated as terminal instead of spawning another reconnect attempt.
	conn.handleClose(&websocket.CloseError{Code: 4015})
	if conn.State() != StateClosed {
		t.Errorf("State() = %v, want closed once the resume rate is exceeded", conn.State())
	}

	mu.Lock()
	count := terminalCount
	mu.Unlock()
	if count != 1 {
		t.Errorf("OnTerminalError invoked %d times, want exactly 1", count)
	}
}

func TestConnection_HandleClose_NoopAfterStop(t *testing.T) {
	session := &VoiceSession{}
	conn := New(session, Options{})
	conn.setState(StateOperational)
	_ = conn.Stop()

	before := conn.State()
	conn.handleClose(&websocket.CloseError{Code: 4015})
	if conn.State() != before {
		t.Errorf("handleClose after Stop changed state from %v to %v", before, conn.State())
	}
}

func TestConnection_SetSpeakingAndVideoStatus_RequireConnection(t *testing.T) {
	session := &VoiceSession{}
	conn := New(session, Options{})

	if err := conn.SetSpeaking(true); err == nil {
		t.Error("SetSpeaking before connecting should fail")
	}
	if err := conn.SetVideoStatus(true, VideoStatusParams{}); err == nil {
		t.Error("SetVideoStatus before connecting should fail")
	}
}
