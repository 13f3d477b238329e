package vectorcipher

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	dErrors "medid/pkg/domain-errors"
)

const (
	saltLength      = 16
	kdfIterations   = 210_000
	derivedKeyBytes = 32
)

// HashPassword derives a key-stretched hash of the password, generating a
// random salt when none is supplied. The result encodes as "salt:hash" with
// both parts hex-encoded.
func HashPassword(password string, salt []byte) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	if salt == nil {
		salt = make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeCrypto, "could not generate salt")
		}
	}
	derived := pbkdf2.Key([]byte(password), salt, kdfIterations, derivedKeyBytes, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(derived), nil
}

// VerifyPassword reports whether password matches an encoded "salt:hash"
// produced by HashPassword. Comparison is constant-time.
func VerifyPassword(password, encoded string) bool {
	saltHex, hashHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	derived := pbkdf2.Key([]byte(password), salt, kdfIterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(derived, expected) == 1
}

// Sign computes an HMAC-SHA256 tag over data. Used when a token identifier is
// exposed as an opaque bearer string and the edge needs tamper evidence.
func Sign(data, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether tag is a valid HMAC-SHA256 tag for data.
func VerifySignature(data, secret []byte, tag string) bool {
	expected, err := hex.DecodeString(tag)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), expected)
}
