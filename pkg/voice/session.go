package voice

import "github.com/ethan/discord-go-live/pkg/crypto"

// VoiceSession is the control-plane identity for one voice connection (§3).
// It is mutated as VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE events arrive and
// as the control connection progresses through its state machine.
type VoiceSession struct {
	GuildID   string
	ChannelID string
	UserID    string
	SessionID string
	ServerURL string
	Token     string

	HasSession bool
	HasToken   bool
	Started    bool
	Resuming   bool
}

// Ready reports whether both the session id and server/token pair have
// arrived, the precondition for starting the control connection.
func (s *VoiceSession) Ready() bool {
	return s.HasSession && s.HasToken
}

// SetSession records the session id from a VOICE_STATE_UPDATE addressed to
// the local user.
func (s *VoiceSession) SetSession(sessionID string) {
	s.SessionID = sessionID
	s.HasSession = true
}

// SetTokens records the server url and token from a VOICE_SERVER_UPDATE.
func (s *VoiceSession) SetTokens(serverURL, token string) {
	s.ServerURL = serverURL
	s.Token = token
	s.HasToken = true
}

// WebRtcParameters is populated from the READY message and remains stable
// for the lifetime of the session (§3).
type WebRtcParameters struct {
	PeerIP         string
	PeerPort       int
	AudioSSRC      uint32
	VideoSSRC      uint32
	RTXSSRC        uint32
	SupportedModes []string
}

// SupportsMode reports whether mode is in the peer's advertised AEAD set.
func (p WebRtcParameters) SupportsMode(mode crypto.Mode) bool {
	for _, m := range p.SupportedModes {
		if m == string(mode) {
			return true
		}
	}
	return false
}

// EncryptionKey is derived from SELECT_PROTOCOL_ACK and used for the
// lifetime of the session (§3).
type EncryptionKey struct {
	Master [32]byte
	Mode   crypto.Mode
}
