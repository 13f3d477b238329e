// Package vectorcipher encrypts, hashes, and signs biometric feature vectors
// and other sensitive payloads. Feature vectors are never persisted or
// transmitted in the clear; everything that leaves this package is ciphertext
// or a one-way digest.
package vectorcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	dErrors "medid/pkg/domain-errors"
)

// KeySize is the required symmetric key length (AES-256).
const KeySize = 32

// Cipher performs symmetric encryption of serialized feature vectors under a
// single key supplied at construction. The key is never logged and never
// appears in audit metadata.
type Cipher struct {
	key []byte
}

// New constructs a Cipher from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "encryption key must be 32 bytes")
	}
	c := &Cipher{key: make([]byte, KeySize)}
	copy(c.key, key)
	return c, nil
}

// NewWithGeneratedKey constructs a Cipher with a fresh random key. Intended
// for tests and single-process deployments where the key is not externally
// provisioned.
func NewWithGeneratedKey() (*Cipher, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not generate encryption key")
	}
	return New(key)
}

// EncryptVector serializes the vector deterministically and encrypts it with
// AES-256-GCM. The random nonce is prepended to the returned ciphertext.
func (c *Cipher) EncryptVector(vector []float64) ([]byte, error) {
	if len(vector) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "vector cannot be empty")
	}
	plaintext := serializeVector(vector)
	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not generate nonce")
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptVector is the inverse of EncryptVector.
//
// Failures are reported as a single generic crypto error: a key mismatch and
// corrupt ciphertext are indistinguishable to the caller so the failure mode
// cannot be used as an oracle.
func (c *Cipher) DecryptVector(ciphertext []byte) ([]float64, error) {
	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) <= gcm.NonceSize() {
		return nil, errDecrypt()
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errDecrypt()
	}
	vector, err := deserializeVector(plaintext)
	if err != nil {
		return nil, errDecrypt()
	}
	return vector, nil
}

// Hash returns the SHA-256 hex digest of data. Used for integrity checks and
// lookup keys where the original payload must not be recoverable.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashVector digests the deterministic serialization of a vector so the same
// vector always yields the same digest.
func HashVector(vector []float64) string {
	return Hash(serializeVector(vector))
}

func (c *Cipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not initialize cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCrypto, "could not initialize cipher")
	}
	return gcm, nil
}

func errDecrypt() error {
	return dErrors.New(dErrors.CodeCrypto, "decryption failed")
}

// serializeVector encodes a vector as a big-endian uint32 length prefix
// followed by big-endian IEEE 754 float64 frames. The encoding is
// deterministic: equal vectors always produce equal bytes, which HashVector
// depends on.
func serializeVector(vector []float64) []byte {
	buf := make([]byte, 4+8*len(vector))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(vector)))
	for i, v := range vector {
		binary.BigEndian.PutUint64(buf[4+8*i:], math.Float64bits(v))
	}
	return buf
}

func deserializeVector(data []byte) ([]float64, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("vector payload too short")
	}
	n := binary.BigEndian.Uint32(data[:4])
	if uint32(len(data)-4) != n*8 {
		return nil, fmt.Errorf("vector payload length mismatch")
	}
	vector := make([]float64, n)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.BigEndian.Uint64(data[4+8*i:]))
	}
	return vector, nil
}
