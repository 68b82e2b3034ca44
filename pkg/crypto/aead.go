// Package crypto implements the transport encryptors used to turn RTP/RTCP
// payloads into SRTP wire data: AES-256-GCM and XChaCha20-Poly1305 (IETF),
// both keyed from a single 32-byte session master key and both driven by a
// monotonic 32-bit nonce counter.
package crypto

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethan/discord-go-live/pkg/voiceerr"
)

// Mode identifies a negotiated AEAD family, named to match the values
// Discord advertises in SELECT_PROTOCOL.
type Mode string

const (
	ModeAES256GCM         Mode = "aead_aes256_gcm_rtpsize"
	ModeXChaCha20Poly1305 Mode = "aead_xchacha20_poly1305_rtpsize"
)

// TruncatedNonceLen is the number of low-order nonce bytes appended to the
// wire packet; the receiver reconstructs the full-width nonce by
// zero-extending these bytes on the left.
const TruncatedNonceLen = 4

// Encryptor is the shared contract for both AEAD variants: encrypt
// plaintext under associated_data, returning ciphertext with the
// authentication tag appended and the nonce used for this call.
type Encryptor interface {
	Mode() Mode
	// NonceLen returns the full width of this AEAD's nonce (12 for
	// AES-GCM, 24 for XChaCha20-Poly1305).
	NonceLen() int
	// Encrypt returns ciphertext||tag and the full-width nonce used.
	Encrypt(plaintext, associatedData []byte) (ciphertext, nonce []byte, err error)
	// Decrypt is provided for round-trip self-tests (§8); the production
	// send path never decrypts.
	Decrypt(ciphertext, associatedData, nonce []byte) (plaintext []byte, err error)
}

// nonceCounter is a 32-bit big-endian monotonic counter shared by every
// Encrypt call on a given key. It wraps modulo 2^32. All callers on a given
// key must share one counter (§5), so every Encryptor embeds one and
// serializes access through its own mutex.
type nonceCounter struct {
	mu  sync.Mutex
	val uint32
}

// next returns the next counter value and a nonce buffer of width
// nonceLen with the counter written into its low 4 bytes, big-endian,
// zero-padded on the left.
func (n *nonceCounter) next(nonceLen int) []byte {
	n.mu.Lock()
	v := n.val
	n.val++
	n.mu.Unlock()

	nonce := make([]byte, nonceLen)
	binary.BigEndian.PutUint32(nonce[nonceLen-4:], v)
	return nonce
}

// TruncatedNonce returns the low 4 bytes of a full-width nonce, the form
// appended to the wire packet.
func TruncatedNonce(nonce []byte) []byte {
	if len(nonce) < TruncatedNonceLen {
		return nonce
	}
	return nonce[len(nonce)-TruncatedNonceLen:]
}

// ExpandNonce reconstructs a full-width nonce from its truncated wire form
// by zero-extending on the left, mirroring what the receiver does.
func ExpandNonce(truncated []byte, nonceLen int) []byte {
	nonce := make([]byte, nonceLen)
	copy(nonce[nonceLen-len(truncated):], truncated)
	return nonce
}

// New constructs the Encryptor for the given mode and 32-byte master key.
// Key-import failures are fatal per §4.1 and are wrapped as voiceerr.AEAD.
func New(mode Mode, masterKey []byte) (Encryptor, error) {
	switch mode {
	case ModeAES256GCM:
		return newAESGCM(masterKey)
	case ModeXChaCha20Poly1305:
		return newXChaCha20Poly1305(masterKey)
	default:
		return nil, voiceerr.AEAD(fmt.Errorf("unsupported AEAD mode %q", mode))
	}
}

// SelfTest encrypts and decrypts a canary payload to catch key-import or
// implementation errors before the session starts sending real media, per
// the "authentication failures on any test-roundtrip are fatal" rule.
func SelfTest(e Encryptor) error {
	const canary = "discord-go-live aead self test"
	aad := []byte("selftest-aad")

	ciphertext, nonce, err := e.Encrypt([]byte(canary), aad)
	if err != nil {
		return voiceerr.AEAD(fmt.Errorf("self-test encrypt: %w", err))
	}

	plaintext, err := e.Decrypt(ciphertext, aad, nonce)
	if err != nil {
		return voiceerr.AEAD(fmt.Errorf("self-test decrypt: %w", err))
	}
	if string(plaintext) != canary {
		return voiceerr.AEAD(fmt.Errorf("self-test roundtrip mismatch"))
	}
	return nil
}
