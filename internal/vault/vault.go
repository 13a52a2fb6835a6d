// Package vault provides password-based encryption of the credential bundle.
// Uses PBKDF2-HMAC-SHA256 for KDF and AES-256-GCM for AEAD. A record is the
// base64 encoding of salt || nonce || ciphertext+tag and is self-contained.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/pbkdf2"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const (
	SaltLen    = 16
	NonceLen   = 12
	KeyLen     = 32
	Iterations = 100000
)

// DeriveKey derives a 32-byte AES key from password and salt.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeyLen, sha256.New)
}

// Encrypt seals plaintext under a key derived from password. Every call draws
// a fresh salt and nonce.
func Encrypt(plaintext, password string) (string, error) {
	if len(password) == 0 {
		return "", walleterr.Validation("password must not be empty")
	}

	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "rand salt")
	}
	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "rand nonce")
	}

	aead, err := newAEAD(DeriveKey(password, salt))
	if err != nil {
		return "", err
	}

	out := make([]byte, 0, SaltLen+NonceLen+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a record produced by Encrypt. Any failure, including a wrong
// or empty password, is reported as walleterr.ErrDecryption.
func Decrypt(record, password string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(record)
	if err != nil {
		return "", walleterr.ErrDecryption
	}
	if len(data) < SaltLen+NonceLen+16 {
		return "", walleterr.ErrDecryption
	}

	salt := data[:SaltLen]
	nonce := data[SaltLen : SaltLen+NonceLen]
	ct := data[SaltLen+NonceLen:]

	aead, err := newAEAD(DeriveKey(password, salt))
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", walleterr.ErrDecryption
	}
	return string(plain), nil
}

// HashPassword returns base64(SHA-256(password)). It is a session marker only
// and cannot decrypt a record.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "aes")
	}
	aead, err := cipher.NewGCMWithNonceSize(block, NonceLen)
	if err != nil {
		return nil, errors.Wrap(err, "gcm")
	}
	return aead, nil
}
