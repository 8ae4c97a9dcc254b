// cipher.go
//
// AES framings used by encrypted FARC archives. Two schemes exist: the DT
// scheme is plain AES-128-ECB over a static key, and the FT scheme is
// AES-128-CBC with a random IV written in front of the ciphertext. FT also
// encrypts the archive header itself, using PKCS#7 padding instead of the
// zero padding applied to entry payloads.

package divapack

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
)

var (
	ErrUnalignedBlock = errors.New("cipher input is not a multiple of the block size")
	ErrShortIV        = errors.New("cipher input shorter than its IV")
	ErrBadPadding     = errors.New("invalid PKCS#7 padding")
)

const blockSize = aes.BlockSize

var (
	keyDT = []byte("project_diva.bin")
	keyFT = []byte{
		0x13, 0x72, 0xD5, 0x7B, 0x6E, 0x9E, 0x31, 0xEB,
		0xA2, 0x39, 0xB8, 0x3C, 0x15, 0x57, 0xC6, 0xBB,
	}
)

// blockCipher applies one of the archive cipher schemes. It holds no key
// material of its own; random supplies IVs for CBC encryption.
type blockCipher struct {
	random io.Reader
}

// Encrypt encrypts data with scheme. The input must already be padded to a
// multiple of 16 bytes. CBC output is prefixed with a fresh IV.
func Encrypt(scheme Scheme, data []byte, opts ...Option) ([]byte, error) {
	return newCodecConfig(opts).cipher().encrypt(scheme, data)
}

// Decrypt reverses Encrypt. Padding is left in place; callers trim to the
// length they know from the entry table.
func Decrypt(scheme Scheme, data []byte) ([]byte, error) {
	return blockCipher{}.decrypt(scheme, data)
}

func (c blockCipher) encrypt(scheme Scheme, data []byte) ([]byte, error) {
	if scheme != SchemeNone && len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnalignedBlock, len(data))
	}
	switch scheme {
	case SchemeNone:
		return data, nil
	case SchemeECB:
		block, err := aes.NewCipher(keyDT)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		for off := 0; off < len(data); off += blockSize {
			block.Encrypt(out[off:off+blockSize], data[off:off+blockSize])
		}
		return out, nil
	case SchemeCBC:
		return c.encryptCBC(data)
	default:
		return nil, fmt.Errorf("encrypt: unknown %s", scheme)
	}
}

func (c blockCipher) decrypt(scheme Scheme, data []byte) ([]byte, error) {
	switch scheme {
	case SchemeNone:
		return data, nil
	case SchemeECB:
		if len(data)%blockSize != 0 {
			return nil, fmt.Errorf("%w: %d bytes", ErrUnalignedBlock, len(data))
		}
		block, err := aes.NewCipher(keyDT)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		for off := 0; off < len(data); off += blockSize {
			block.Decrypt(out[off:off+blockSize], data[off:off+blockSize])
		}
		return out, nil
	case SchemeCBC:
		return decryptCBC(data)
	default:
		return nil, fmt.Errorf("decrypt: unknown %s", scheme)
	}
}

func (c blockCipher) encryptCBC(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(keyFT)
	if err != nil {
		return nil, err
	}
	random := c.random
	if random == nil {
		return nil, errors.New("encrypt: no IV source")
	}
	out := make([]byte, blockSize+len(data))
	if _, err := io.ReadFull(random, out[:blockSize]); err != nil {
		return nil, fmt.Errorf("read IV: %w", err)
	}
	cipher.NewCBCEncrypter(block, out[:blockSize]).CryptBlocks(out[blockSize:], data)
	return out, nil
}

func decryptCBC(data []byte) ([]byte, error) {
	if len(data) < blockSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortIV, len(data))
	}
	iv, body := data[:blockSize], data[blockSize:]
	if len(body)%blockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnalignedBlock, len(body))
	}
	block, err := aes.NewCipher(keyFT)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	return out, nil
}

// encryptHeader is the header-only CBC form: PKCS#7 pad, then encrypt with
// an IV prefix.
func (c blockCipher) encryptHeader(plain []byte) ([]byte, error) {
	return c.encryptCBC(pkcs7Pad(plain))
}

// decryptHeader reverses encryptHeader and strips the padding.
func decryptHeader(data []byte) ([]byte, error) {
	plain, err := decryptCBC(data)
	if err != nil {
		return nil, err
	}
	return pkcs7Unpad(plain)
}

func pkcs7Pad(b []byte) []byte {
	n := blockSize - len(b)%blockSize
	return append(append(make([]byte, 0, len(b)+n), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize {
		return nil, ErrBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}

// pkcs7Len is the padded length of an n-byte header body.
func pkcs7Len(n int) int { return n + blockSize - n%blockSize }

// zeroPad extends b with zero bytes up to a multiple of the block size.
func zeroPad(b []byte) []byte {
	if len(b)%blockSize == 0 {
		return b
	}
	out := make([]byte, alignUp(len(b), blockSize))
	copy(out, b)
	return out
}

// alignUp rounds n up to the next multiple of align, which must be a power
// of two.
func alignUp(n, align int) int { return (n + align - 1) &^ (align - 1) }
