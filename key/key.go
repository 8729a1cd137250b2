package key

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Size is the length in bytes of every key produced by this package.
const Size = 16

type Key interface {
	GetBytes() []byte
	Len() int
}

type key128 struct {
	material [Size]byte
}

func (k *key128) GetBytes() []byte {
	b := make([]byte, Size)
	copy(b, k.material[:])
	return b
}

func (k *key128) Len() int {
	return len(k.material)
}

// Bit128 returns a fresh random 128-bit key.
func Bit128() Key {
	b := generateRandomBytes(Size)
	return &key128{material: [Size]byte(b)}
}

func NewKey(material [Size]byte) Key {
	return &key128{material: material}
}

// Derive expands seed into a 128-bit key with HKDF-SHA256. The same seed and
// info always yield the same key, which makes runs reproducible.
func Derive(seed []byte, info string) (Key, error) {
	var material [Size]byte
	r := hkdf.New(sha256.New, seed, nil, []byte(info))
	if _, err := io.ReadFull(r, material[:]); err != nil {
		return nil, err
	}
	return &key128{material: material}, nil
}

func generateRandomBytes(n int) []byte {
	randBytes := make([]byte, n)

	i, err := rand.Read(randBytes)
	if i != n || err != nil {
		panic("Could not generate random bytes")
	}

	return randBytes
}
