// Package crypto seals user wallet secrets at rest. Sealing is AES-256-GCM
// under a per-subject key derived from the configured secret via SHA-256; the
// blob carries a version byte, the nonce, and the auth tag, so opening needs
// nothing but the blob and its subject.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"strings"
)

// blobVersion tags the blob layout: version || nonce || ciphertext+tag.
const blobVersion = 0x01

// Vault seals and opens secrets for string subjects (wallet addresses). Each
// subject gets its own AES key, so one exposed key does not unlock the rest.
type Vault struct {
	master [sha256.Size]byte
}

// NewVault derives the vault's master key from the configured secret.
func NewVault(secret string) (*Vault, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("encryption secret is required")
	}
	return &Vault{master: sha256.Sum256([]byte(secret))}, nil
}

// subjectKey derives the per-subject AES key. The subject is length-prefixed
// so no two subjects can produce the same hash input.
func (v *Vault) subjectKey(subject string) []byte {
	h := sha256.New()
	_, _ = h.Write(v.master[:])
	_, _ = h.Write([]byte{byte(len(subject) >> 8), byte(len(subject))})
	_, _ = h.Write([]byte(subject))
	return h.Sum(nil)
}

func (v *Vault) aead(subject string) (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.subjectKey(subject))
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext for the subject. The subject is bound as additional
// authenticated data, so a blob moved to another wallet row fails to open.
func (v *Vault) Encrypt(subject string, plaintext []byte) ([]byte, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if len(plaintext) == 0 {
		return nil, nil
	}

	aead, err := v.aead(subject)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	blob := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, blobVersion)
	blob = append(blob, nonce...)
	return aead.Seal(blob, nonce, plaintext, []byte(subject)), nil
}

// Decrypt opens a blob previously produced by Encrypt for the same subject.
func (v *Vault) Decrypt(subject string, blob []byte) ([]byte, error) {
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if len(blob) == 0 {
		return nil, nil
	}
	if blob[0] != blobVersion {
		return nil, fmt.Errorf("unsupported blob version %d", blob[0])
	}

	aead, err := v.aead(subject)
	if err != nil {
		return nil, err
	}
	if len(blob) < 1+aead.NonceSize() {
		return nil, fmt.Errorf("blob too short")
	}
	nonce := blob[1 : 1+aead.NonceSize()]
	body := blob[1+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, body, []byte(subject))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
