package divapack

import (
	"bytes"
	"crypto/aes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seededRandom returns a deterministic IV source.
func seededRandom(seed byte) *rand.ChaCha8 {
	var s [32]byte
	for i := range s {
		s[i] = seed + byte(i)
	}
	return rand.NewChaCha8(s)
}

func TestCipherECB(t *testing.T) {
	plain := bytes.Repeat([]byte("0123456789abcdef"), 3)

	enc, err := Encrypt(SchemeECB, plain)
	require.NoError(t, err)
	assert.Len(t, enc, len(plain))
	assert.NotEqual(t, plain, enc)

	// ECB: identical plaintext blocks give identical ciphertext blocks.
	assert.Equal(t, enc[:16], enc[16:32])

	block, err := aes.NewCipher([]byte("project_diva.bin"))
	require.NoError(t, err)
	want := make([]byte, 16)
	block.Encrypt(want, plain[:16])
	assert.Equal(t, want, enc[:16])

	dec, err := Decrypt(SchemeECB, enc)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)
}

func TestCipherCBC(t *testing.T) {
	plain := bytes.Repeat([]byte{0xAB}, 48)

	t.Run("prepends a fresh IV", func(t *testing.T) {
		enc1, err := Encrypt(SchemeCBC, plain)
		require.NoError(t, err)
		enc2, err := Encrypt(SchemeCBC, plain)
		require.NoError(t, err)

		assert.Len(t, enc1, 16+len(plain))
		assert.NotEqual(t, enc1[:16], enc2[:16], "two encryptions reused an IV")

		for _, enc := range [][]byte{enc1, enc2} {
			dec, err := Decrypt(SchemeCBC, enc)
			require.NoError(t, err)
			assert.Equal(t, plain, dec)
		}
	})

	t.Run("deterministic with injected source", func(t *testing.T) {
		enc1, err := Encrypt(SchemeCBC, plain, WithRandom(seededRandom(1)))
		require.NoError(t, err)
		enc2, err := Encrypt(SchemeCBC, plain, WithRandom(seededRandom(1)))
		require.NoError(t, err)
		assert.Equal(t, enc1, enc2)
	})

	t.Run("short input", func(t *testing.T) {
		_, err := Decrypt(SchemeCBC, make([]byte, 8))
		assert.ErrorIs(t, err, ErrShortIV)
	})
}

func TestCipherRejectsUnalignedInput(t *testing.T) {
	for _, s := range []Scheme{SchemeECB, SchemeCBC} {
		t.Run(s.String(), func(t *testing.T) {
			_, err := Encrypt(s, make([]byte, 17))
			assert.ErrorIs(t, err, ErrUnalignedBlock)
		})
	}

	_, err := Decrypt(SchemeECB, make([]byte, 15))
	assert.ErrorIs(t, err, ErrUnalignedBlock)
	_, err = Decrypt(SchemeCBC, make([]byte, 16+15))
	assert.ErrorIs(t, err, ErrUnalignedBlock)
}

func TestCipherNonePassesThrough(t *testing.T) {
	data := []byte("odd length")
	enc, err := Encrypt(SchemeNone, data)
	require.NoError(t, err)
	assert.Equal(t, data, enc)
}

func TestHeaderCipher(t *testing.T) {
	c := blockCipher{random: seededRandom(7)}

	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"short", 5},
		{"one block", 16},
		{"uneven", 37},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plain := bytes.Repeat([]byte{'h'}, tt.size)
			sealed, err := c.encryptHeader(plain)
			require.NoError(t, err)
			assert.Equal(t, 16+pkcs7Len(tt.size), len(sealed))

			got, err := decryptHeader(sealed)
			require.NoError(t, err)
			assert.Equal(t, plain, got)
		})
	}
}

func TestPKCS7Unpad(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		err  bool
	}{
		{"valid", append(bytes.Repeat([]byte{1}, 12), 4, 4, 4, 4), false},
		{"full block", bytes.Repeat([]byte{16}, 16), false},
		{"zero pad byte", make([]byte, 16), true},
		{"inconsistent", append(bytes.Repeat([]byte{1}, 13), 2, 3, 3), true},
		{"too large", append(bytes.Repeat([]byte{1}, 15), 17), true},
		{"unaligned", []byte{1, 1, 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pkcs7Unpad(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrBadPadding)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestZeroPad(t *testing.T) {
	assert.Len(t, zeroPad(nil), 0)
	assert.Len(t, zeroPad(make([]byte, 16)), 16)
	p := zeroPad([]byte{1, 2, 3})
	assert.Equal(t, append([]byte{1, 2, 3}, make([]byte, 13)...), p)
}
