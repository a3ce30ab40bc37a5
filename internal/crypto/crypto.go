// Package crypto seals chat bodies with a key derived from the room password.
// Sealed bodies are packed as three hex fields: salt:iv:ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	apperrors "ephemera/pkg/errors"
)

// Params
const (
	SaltLen = 16
	IVLen   = 12
	KeyLen  = 32

	Iterations = 100_000
)

var errFormat = errors.New("sealed body is not salt:iv:ciphertext")

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives an AES-256 key from the room password and salt with PBKDF2-SHA256.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, Iterations, KeyLen, sha256.New)
}

// Encrypt seals plaintext with a fresh salt and IV.
func Encrypt(plaintext, password string) (string, error) {
	salt, err := Rand(SaltLen)
	if err != nil {
		return "", err
	}
	iv, err := Rand(IVLen)
	if err != nil {
		return "", err
	}
	aead, err := newGCM(DeriveKey(password, salt))
	if err != nil {
		return "", err
	}
	ct := aead.Seal(nil, iv, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a sealed body. Malformed input or a wrong password yields
// an error wrapping apperrors.ErrDecryption.
func Decrypt(sealed, password string) (string, error) {
	salt, iv, ct, err := split(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrDecryption, err)
	}
	aead, err := newGCM(DeriveKey(password, salt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrDecryption, err)
	}
	pt, err := aead.Open(nil, iv, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrDecryption, err)
	}
	return string(pt), nil
}

// DecryptOrRaw fails open: anything that does not decrypt is returned as is.
func DecryptOrRaw(body, password string) (string, bool) {
	pt, err := Decrypt(body, password)
	if err != nil {
		return body, false
	}
	return pt, true
}

// LooksSealed reports whether body has the salt:iv:ciphertext shape.
func LooksSealed(body string) bool {
	_, _, _, err := split(body)
	return err == nil
}

func split(sealed string) (salt, iv, ct []byte, err error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return nil, nil, nil, errFormat
	}
	if salt, err = hex.DecodeString(parts[0]); err != nil || len(salt) != SaltLen {
		return nil, nil, nil, errFormat
	}
	if iv, err = hex.DecodeString(parts[1]); err != nil || len(iv) != IVLen {
		return nil, nil, nil, errFormat
	}
	if ct, err = hex.DecodeString(parts[2]); err != nil || len(ct) == 0 {
		return nil, nil, nil, errFormat
	}
	return salt, iv, ct, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
