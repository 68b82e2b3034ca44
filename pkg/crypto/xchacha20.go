package crypto

import (
	"fmt"
	"sync"

	"github.com/ethan/discord-go-live/pkg/voiceerr"
	"golang.org/x/crypto/chacha20poly1305"
)

const xChaCha20NonceLen = chacha20poly1305.NonceSizeX // 24 bytes

// sodiumInit models the "global sodium/AEAD handle" design note (§9): the
// underlying AEAD implementation is only constructed once per process and
// then shared, guarded by a lazy init-before-first-use singleton rather than
// re-derived on every call.
var sodiumInit sync.Once

func ensureSodiumInit() {
	sodiumInit.Do(func() {
		// golang.org/x/crypto/chacha20poly1305 has no explicit global
		// init step; this models the lazy-singleton shape the design
		// calls for so future swaps to a libsodium binding only touch
		// this function.
	})
}

// xChaCha20Poly1305 implements Encryptor using the IETF XChaCha20-Poly1305
// construction with a 24-byte nonce, per §4.1.
type xChaCha20Poly1305 struct {
	aeadCipher interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	nonce nonceCounter
}

func newXChaCha20Poly1305(masterKey []byte) (*xChaCha20Poly1305, error) {
	ensureSodiumInit()

	if len(masterKey) != chacha20poly1305.KeySize {
		return nil, voiceerr.AEAD(fmt.Errorf("XChaCha20-Poly1305 requires a %d-byte key, got %d",
			chacha20poly1305.KeySize, len(masterKey)))
	}

	aead, err := chacha20poly1305.NewX(masterKey)
	if err != nil {
		return nil, voiceerr.AEAD(fmt.Errorf("import XChaCha20-Poly1305 key: %w", err))
	}

	x := &xChaCha20Poly1305{aeadCipher: aead}
	if err := SelfTest(x); err != nil {
		return nil, err
	}
	return x, nil
}

func (x *xChaCha20Poly1305) Mode() Mode   { return ModeXChaCha20Poly1305 }
func (x *xChaCha20Poly1305) NonceLen() int { return xChaCha20NonceLen }

func (x *xChaCha20Poly1305) Encrypt(plaintext, associatedData []byte) ([]byte, []byte, error) {
	nonce := x.nonce.next(xChaCha20NonceLen)
	ciphertext := x.aeadCipher.Seal(nil, nonce, plaintext, associatedData)
	return ciphertext, nonce, nil
}

func (x *xChaCha20Poly1305) Decrypt(ciphertext, associatedData, nonce []byte) ([]byte, error) {
	return x.aeadCipher.Open(nil, nonce, ciphertext, associatedData)
}
