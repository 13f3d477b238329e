package vectorcipher

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "medid/pkg/domain-errors"
)

type CipherSuite struct {
	suite.Suite
	cipher *Cipher
}

func TestCipherSuite(t *testing.T) {
	suite.Run(t, new(CipherSuite))
}

func (s *CipherSuite) SetupTest() {
	cipher, err := NewWithGeneratedKey()
	s.Require().NoError(err)
	s.cipher = cipher
}

func (s *CipherSuite) TestNew() {
	s.Run("rejects short key", func() {
		_, err := New(make([]byte, 16))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("accepts 32 byte key", func() {
		_, err := New(make([]byte, KeySize))
		s.Require().NoError(err)
	})
}

func (s *CipherSuite) TestEncryptDecryptRoundTrip() {
	vector := []float64{0.12, -3.5, 0, 42.0001, 1e-9, -0.75}

	ciphertext, err := s.cipher.EncryptVector(vector)
	s.Require().NoError(err)
	s.NotContains(string(ciphertext), "0.12")

	recovered, err := s.cipher.DecryptVector(ciphertext)
	s.Require().NoError(err)
	s.Require().Len(recovered, len(vector))
	for i := range vector {
		s.InDelta(vector[i], recovered[i], 1e-9)
	}
}

func (s *CipherSuite) TestEncryptRejectsEmptyVector() {
	_, err := s.cipher.EncryptVector(nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *CipherSuite) TestDecryptFailuresAreGeneric() {
	vector := []float64{1, 2, 3}
	ciphertext, err := s.cipher.EncryptVector(vector)
	s.Require().NoError(err)

	s.Run("tampered ciphertext", func() {
		tampered := append([]byte{}, ciphertext...)
		tampered[len(tampered)-1] ^= 0xff
		_, err := s.cipher.DecryptVector(tampered)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCrypto))
		s.Equal("decryption failed", err.Error())
	})

	s.Run("wrong key", func() {
		other, err := NewWithGeneratedKey()
		s.Require().NoError(err)
		_, decErr := other.DecryptVector(ciphertext)
		s.Require().Error(decErr)
		s.True(dErrors.HasCode(decErr, dErrors.CodeCrypto))
		// Same message as the tampered case: no key-vs-corruption oracle.
		s.Equal("decryption failed", decErr.Error())
	})

	s.Run("truncated ciphertext", func() {
		_, err := s.cipher.DecryptVector(ciphertext[:4])
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCrypto))
	})
}

func (s *CipherSuite) TestCiphertextIsNonDeterministic() {
	vector := []float64{0.5, 0.25}
	first, err := s.cipher.EncryptVector(vector)
	s.Require().NoError(err)
	second, err := s.cipher.EncryptVector(vector)
	s.Require().NoError(err)
	s.NotEqual(first, second)
}

func (s *CipherSuite) TestHashVectorIsDeterministic() {
	vector := []float64{0.1, 0.2, 0.3}
	s.Equal(HashVector(vector), HashVector([]float64{0.1, 0.2, 0.3}))
	s.NotEqual(HashVector(vector), HashVector([]float64{0.1, 0.2, 0.30000001}))
	s.Len(HashVector(vector), 64)
}
