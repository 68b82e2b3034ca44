package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/ethan/discord-go-live/pkg/voiceerr"
)

const aesGCMNonceLen = 12

// aesGCM implements Encryptor using AES-256-GCM with a 12-byte IV, per
// §4.1.
type aesGCM struct {
	aead  cipher.AEAD
	nonce nonceCounter
}

func newAESGCM(masterKey []byte) (*aesGCM, error) {
	if len(masterKey) != 32 {
		return nil, voiceerr.AEAD(fmt.Errorf("AES-256-GCM requires a 32-byte key, got %d", len(masterKey)))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, voiceerr.AEAD(fmt.Errorf("import AES key: %w", err))
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, voiceerr.AEAD(fmt.Errorf("init AES-GCM: %w", err))
	}

	g := &aesGCM{aead: aead}
	if err := SelfTest(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *aesGCM) Mode() Mode   { return ModeAES256GCM }
func (g *aesGCM) NonceLen() int { return aesGCMNonceLen }

func (g *aesGCM) Encrypt(plaintext, associatedData []byte) ([]byte, []byte, error) {
	nonce := g.nonce.next(aesGCMNonceLen)
	ciphertext := g.aead.Seal(nil, nonce, plaintext, associatedData)
	return ciphertext, nonce, nil
}

func (g *aesGCM) Decrypt(ciphertext, associatedData, nonce []byte) ([]byte, error) {
	return g.aead.Open(nil, nonce, ciphertext, associatedData)
}
