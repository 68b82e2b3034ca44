package voice

import (
	"testing"

	"github.com/ethan/discord-go-live/pkg/crypto"
)

func TestVoiceSession_Ready(t *testing.T) {
	var s VoiceSession
	if s.Ready() {
		t.Fatal("a fresh session should not be ready")
	}

	s.SetSession("session-1")
	if s.Ready() {
		t.Fatal("session id alone should not be enough")
	}

	s.SetTokens("voice.example.com", "token-1")
	if !s.Ready() {
		t.Fatal("session should be ready once both session id and tokens are set")
	}
	if s.ServerURL != "voice.example.com" || s.Token != "token-1" {
		t.Errorf("SetTokens did not record server url/token correctly: %+v", s)
	}
}

func TestWebRtcParameters_SupportsMode(t *testing.T) {
	p := WebRtcParameters{SupportedModes: []string{"aead_aes256_gcm_rtpsize"}}
	if !p.SupportsMode(crypto.ModeAES256GCM) {
		t.Error("expected AES-256-GCM to be supported")
	}
	if p.SupportsMode(crypto.ModeXChaCha20Poly1305) {
		t.Error("did not expect XChaCha20-Poly1305 to be supported")
	}
}
