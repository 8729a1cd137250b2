package aesgo

import (
	"bytes"
	"errors"
)

// ErrInvalidPadding is returned when a plaintext does not end in a well-formed PKCS#7 pad.
var ErrInvalidPadding = errors.New("aesgo: invalid padding")

// Pad appends PKCS#7 padding so the result is a multiple of blockSize.
// A full block of padding is added when src is already aligned.
func Pad(src []byte, blockSize int) []byte {
	padding := blockSize - len(src)%blockSize
	out := make([]byte, len(src), len(src)+padding)
	copy(out, src)
	return append(out, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// ValidPadding reports whether the last byte p of b is in [1, blockSize]
// and the last p bytes of b all equal p.
func ValidPadding(b []byte, blockSize int) bool {
	l := len(b)
	if l == 0 {
		return false
	}

	p := int(b[l-1])
	if p == 0 || p > blockSize || p > l {
		return false
	}

	for _, v := range b[l-p:] {
		if int(v) != p {
			return false
		}
	}
	return true
}

// RemovePadding strips a PKCS#7 pad of at most BlockSize bytes.
func RemovePadding(b []byte) ([]byte, error) {
	if !ValidPadding(b, BlockSize) {
		return nil, ErrInvalidPadding
	}
	return b[:len(b)-int(b[len(b)-1])], nil
}
