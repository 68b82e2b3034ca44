package rtp

import (
	"github.com/ethan/discord-go-live/pkg/crypto"
)

// fakeSender records every packet handed to it, in order.
type fakeSender struct {
	packets [][]byte
}

func (s *fakeSender) Send(packet []byte) error {
	cp := make([]byte, len(packet))
	copy(cp, packet)
	s.packets = append(s.packets, cp)
	return nil
}

// passthroughEncryptor is a no-op AEAD stand-in: it appends a fixed 4-byte
// "tag" instead of performing real encryption, so tests can assert on
// plaintext boundaries without depending on a specific cipher.
type passthroughEncryptor struct{}

func (passthroughEncryptor) Mode() crypto.Mode { return crypto.ModeAES256GCM }
func (passthroughEncryptor) NonceLen() int     { return 12 }

func (passthroughEncryptor) Encrypt(plaintext, associatedData []byte) ([]byte, []byte, error) {
	out := make([]byte, len(plaintext)+4)
	copy(out, plaintext)
	nonce := make([]byte, 12)
	return out, nonce, nil
}

func (passthroughEncryptor) Decrypt(ciphertext, associatedData, nonce []byte) ([]byte, error) {
	if len(ciphertext) < 4 {
		return nil, nil
	}
	return ciphertext[:len(ciphertext)-4], nil
}
