package snapshot

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// At-rest encryption for snapshot blobs: AES-256-GCM with a key derived
// from a passphrase via PBKDF2-SHA256. The salt travels with the
// ciphertext, so a blob is self-contained.
//
// Wire format: [16-byte salt][12-byte nonce][ciphertext+tag]

const (
	saltSize         = 16
	pbkdf2Iterations = 100_000
)

// ErrDecryptionFailed is returned when a blob cannot be authenticated:
// wrong passphrase or tampered ciphertext. Callers restoring through an
// Encryptor should treat it as a corrupt snapshot.
var ErrDecryptionFailed = errors.New("snapshot: decryption failed")

// Encryptor seals and opens snapshot blobs with a passphrase-derived key.
//
// A disabled Encryptor passes blobs through unchanged, so callers can keep
// one code path regardless of configuration.
type Encryptor struct {
	passphrase []byte
	enabled    bool
}

// NewEncryptor creates an Encryptor. An empty passphrase disables
// encryption (Seal and Open become identity functions).
func NewEncryptor(passphrase string) *Encryptor {
	return &Encryptor{
		passphrase: []byte(passphrase),
		enabled:    passphrase != "",
	}
}

// IsEnabled reports whether blobs will actually be encrypted.
// Safe to call on a nil Encryptor.
func (e *Encryptor) IsEnabled() bool {
	return e != nil && e.enabled
}

// Seal encrypts a snapshot blob. Each call uses a fresh random salt and
// nonce, so sealing the same blob twice yields different ciphertexts.
func (e *Encryptor) Seal(blob []byte) ([]byte, error) {
	if !e.enabled {
		return blob, nil
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("snapshot: generate salt: %w", err)
	}

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("snapshot: generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(blob)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, blob, nil)
	return out, nil
}

// Open decrypts a sealed blob. Authentication failure (wrong passphrase or
// tampering) returns ErrDecryptionFailed.
func (e *Encryptor) Open(sealed []byte) ([]byte, error) {
	if !e.enabled {
		return sealed, nil
	}

	if len(sealed) < saltSize {
		return nil, fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}
	salt := sealed[:saltSize]

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}

	rest := sealed[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}

	blob, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return blob, nil
}

func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	material := pbkdf2.Key(e.passphrase, salt, pbkdf2Iterations, 32, sha256.New)

	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("snapshot: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("snapshot: init gcm: %w", err)
	}
	return gcm, nil
}
