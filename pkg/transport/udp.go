// Package transport owns the connectionless UDP socket used for Discord
// voice media: IP discovery (§4.2) and an ordered, asynchronous send
// primitive. There is no receive pipeline in scope; incoming datagrams
// after discovery are discarded.
package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ethan/discord-go-live/pkg/voiceerr"
)

const (
	discoveryRequestLen  = 74
	discoveryRequestType = 0x0001
	discoveryRequestLen2 = 0x0046
	discoveryReplyType   = 0x0002

	// discoveryIPOffset and discoveryIPFieldLen bound the NUL-terminated
	// ASCII IPv4 literal in the discovery reply.
	discoveryIPOffset   = 8
	discoveryIPFieldLen = 64
)

// Endpoint is the peer's public address as reported by IP discovery.
type Endpoint struct {
	IP   string
	Port uint16
}

func (e Endpoint) String() string { return net.JoinHostPort(e.IP, fmt.Sprintf("%d", e.Port)) }

// Socket owns a single connectionless IPv4 UDP socket bound to a Discord
// voice server endpoint. It is not safe to call Send concurrently from two
// goroutines without external serialization beyond what net.UDPConn already
// guarantees for a single writer (§5: single logical writer per socket).
type Socket struct {
	conn   *net.UDPConn
	peer   *net.UDPAddr
	logger *slog.Logger
}

// Dial opens the UDP socket to serverAddr (host:port, as supplied by the
// voice-server READY payload).
func Dial(serverAddr string, logger *slog.Logger) (*Socket, error) {
	peer, err := net.ResolveUDPAddr("udp4", serverAddr)
	if err != nil {
		return nil, voiceerr.Handshake(fmt.Errorf("resolve voice server address %q: %w", serverAddr, err))
	}

	conn, err := net.DialUDP("udp4", nil, peer)
	if err != nil {
		return nil, voiceerr.Handshake(fmt.Errorf("dial UDP %s: %w", serverAddr, err))
	}

	return &Socket{conn: conn, peer: peer, logger: logger}, nil
}

// Close releases the UDP socket.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Discover performs Discord's IP discovery handshake: it sends a 74-byte
// request carrying audioSSRC and blocks for a single reply datagram, per
// §4.2 and the concrete scenario in spec §8.1.
func (s *Socket) Discover(ctx context.Context, audioSSRC uint32) (Endpoint, error) {
	req := BuildDiscoveryRequest(audioSSRC)

	if _, err := s.conn.Write(req); err != nil {
		return Endpoint{}, voiceerr.Handshake(fmt.Errorf("write IP discovery request: %w", err))
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	} else {
		_ = s.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	}
	defer s.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, discoveryRequestLen)
	n, err := s.conn.Read(buf)
	if err != nil {
		return Endpoint{}, voiceerr.Handshake(fmt.Errorf("read IP discovery reply: %w", err))
	}

	return ParseDiscoveryReply(buf[:n])
}

// BuildDiscoveryRequest constructs the 74-byte IP discovery request:
// type=0x0001, length=0x0046, audio SSRC, zero-padded to 74 bytes.
func BuildDiscoveryRequest(audioSSRC uint32) []byte {
	req := make([]byte, discoveryRequestLen)
	binary.BigEndian.PutUint16(req[0:2], discoveryRequestType)
	binary.BigEndian.PutUint16(req[2:4], discoveryRequestLen2)
	binary.BigEndian.PutUint32(req[4:8], audioSSRC)
	return req
}

// ParseDiscoveryReply parses a discovery reply datagram into the peer's
// view of our public endpoint. It fails if the response type is not 0x0002
// or the embedded address is not a valid IPv4 literal.
func ParseDiscoveryReply(reply []byte) (Endpoint, error) {
	if len(reply) < discoveryRequestLen {
		return Endpoint{}, voiceerr.Handshake(fmt.Errorf("discovery reply too short: %d bytes", len(reply)))
	}

	respType := binary.BigEndian.Uint16(reply[0:2])
	if respType != discoveryReplyType {
		return Endpoint{}, voiceerr.Handshake(fmt.Errorf("unexpected discovery reply type 0x%04x", respType))
	}

	ipField := reply[discoveryIPOffset : discoveryIPOffset+discoveryIPFieldLen]
	nullPos := bytes.IndexByte(ipField, 0)
	if nullPos < 0 {
		nullPos = len(ipField)
	}
	ipStr := string(ipField[:nullPos])

	ip := net.ParseIP(ipStr)
	if ip == nil || ip.To4() == nil {
		return Endpoint{}, voiceerr.Handshake(fmt.Errorf("discovery reply contains invalid IPv4 literal %q", ipStr))
	}

	port := binary.BigEndian.Uint16(reply[len(reply)-2:])

	return Endpoint{IP: ip.String(), Port: port}, nil
}

// Send transmits a fully assembled SRTP/SRTCP packet to the negotiated peer.
// Errors are returned to the caller; per §4.2 and §7 a send failure does not
// by itself tear down the session.
func (s *Socket) Send(packet []byte) error {
	_, err := s.conn.Write(packet)
	if err != nil {
		s.logger.Warn("udp send failed", "error", err, "bytes", len(packet))
	}
	return err
}

// LocalAddr returns the local UDP address bound for this socket.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
