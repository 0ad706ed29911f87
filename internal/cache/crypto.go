package cache

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// cipherAtRest is the serialize->encrypt->store layer boundary spec.md
// §4.5 calls for: it exists so the transform can be swapped for an
// identity implementation in tests without touching the store.
type cipherAtRest interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// aesCBCCipher implements AES-256-CBC with a process-random 32-byte key
// and 16-byte IV generated once at startup. Per spec.md, this is
// informational-only: it does not provide cross-process confidentiality,
// since the key never leaves the process that generated it.
type aesCBCCipher struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

func newAESCBCCipher() (*aesCBCCipher, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cache: generating AES-256 key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cache: constructing AES cipher: %w", err)
	}
	c := &aesCBCCipher{block: block}
	if _, err := rand.Read(c.iv[:]); err != nil {
		return nil, fmt.Errorf("cache: generating IV: %w", err)
	}
	return c, nil
}

func (c *aesCBCCipher) Seal(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv[:]).CryptBlocks(out, padded)
	return out, nil
}

func (c *aesCBCCipher) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("cache: ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv[:]).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out)
}

// identityCipher is the "encryption disabled" path used by tests.
type identityCipher struct{}

func (identityCipher) Seal(plaintext []byte) ([]byte, error) { return plaintext, nil }
func (identityCipher) Open(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("cache: invalid PKCS7 padding")
	}
	trimmed := data[:len(data)-padLen]
	if !bytes.Equal(data[len(trimmed):], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, errors.New("cache: invalid PKCS7 padding")
	}
	return trimmed, nil
}
