// Package oracle implements a deliberately vulnerable CBC padding oracle.
//
// An Oracle can be thought of as a server that decrypts its input but never
// returns the plaintext to the caller. For example, a web server that decrypts
// a cookie to check for user permissions and answers differently when the
// padding is broken. Check exposes exactly that signal, one block at a time.
package oracle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	aesgo "github.com/mario-areias/padding-oracle/aes-go"
	"github.com/mario-areias/padding-oracle/key"
)

const (
	// CipherAES selects crypto/aes.
	CipherAES = "aes"
	// CipherAESGo selects the software AES in aes-go.
	CipherAESGo = "aesgo"
)

var (
	// ErrBlockSize is returned by Check when the block or IV is not exactly one cipher block.
	ErrBlockSize = errors.New("oracle: input is not a single block")
	// ErrUnknownCipher is returned by New for an unrecognised cipher name.
	ErrUnknownCipher = errors.New("oracle: unknown cipher")
)

// Oracle owns a secret key for its whole lifetime. It is safe for concurrent use.
type Oracle struct {
	key    key.Key
	block  cipher.Block
	rand   io.Reader
	logger *zap.Logger
}

type settings struct {
	key        key.Key
	cipherName string
	rand       io.Reader
	logger     *zap.Logger
}

type Option func(*settings)

// WithKey fixes the secret key instead of generating a random one.
func WithKey(k key.Key) Option {
	return func(s *settings) { s.key = k }
}

// WithCipher picks the block cipher implementation (CipherAES or CipherAESGo).
func WithCipher(name string) Option {
	return func(s *settings) { s.cipherName = name }
}

// WithRand sets the source used for IVs.
func WithRand(r io.Reader) Option {
	return func(s *settings) { s.rand = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func New(opts ...Option) (*Oracle, error) {
	s := settings{
		cipherName: CipherAES,
		rand:       rand.Reader,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.key == nil {
		s.key = key.Bit128()
	}

	block, err := newBlock(s.cipherName, s.key)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("oracle ready", zap.String("cipher", s.cipherName), zap.Int("block_size", block.BlockSize()))

	return &Oracle{
		key:    s.key,
		block:  block,
		rand:   s.rand,
		logger: s.logger,
	}, nil
}

func newBlock(name string, k key.Key) (cipher.Block, error) {
	switch name {
	case CipherAES:
		return aes.NewCipher(k.GetBytes())
	case CipherAESGo:
		return aesgo.NewCipher(k)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCipher, name)
	}
}

func (o *Oracle) BlockSize() int {
	return o.block.BlockSize()
}

// Encrypt pads plaintext with PKCS#7 and encrypts it in CBC mode under a fresh random IV.
func (o *Oracle) Encrypt(plaintext []byte) (iv, ciphertext []byte, err error) {
	bs := o.block.BlockSize()

	iv = make([]byte, bs)
	if _, err := io.ReadFull(o.rand, iv); err != nil {
		return nil, nil, fmt.Errorf("generating iv: %w", err)
	}

	padded := aesgo.Pad(plaintext, bs)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(o.block, iv).CryptBlocks(ciphertext, padded)

	o.logger.Debug("encrypted message", zap.Int("blocks", len(ciphertext)/bs))

	return iv, ciphertext, nil
}

// EncryptString encrypts the UTF-8 bytes of s.
func (o *Oracle) EncryptString(s string) (iv, ciphertext []byte, err error) {
	return o.Encrypt([]byte(s))
}

// Check decrypts a single block with the caller's IV and reports whether the
// result carries valid PKCS#7 padding. raw is the decrypted block after the
// IV XOR, i.e. the bytes the padding check looked at. For the same key, block
// and IV the answer never changes.
func (o *Oracle) Check(block, iv []byte) (raw []byte, valid bool, err error) {
	bs := o.block.BlockSize()
	if len(block) != bs || len(iv) != bs {
		return nil, false, fmt.Errorf("%w: block=%d iv=%d want=%d", ErrBlockSize, len(block), len(iv), bs)
	}

	raw = make([]byte, bs)
	cipher.NewCBCDecrypter(o.block, iv).CryptBlocks(raw, block)

	return raw, aesgo.ValidPadding(raw, bs), nil
}

// Decrypt decrypts a whole message and only tells the caller whether the
// padding was valid, the way a real vulnerable endpoint would.
func (o *Oracle) Decrypt(iv, ciphertext []byte) error {
	bs := o.block.BlockSize()
	if len(iv) != bs || len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return ErrBlockSize
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(o.block, iv).CryptBlocks(plaintext, ciphertext)

	if !aesgo.ValidPadding(plaintext, bs) {
		return aesgo.ErrInvalidPadding
	}
	return nil
}

// CheckFunc adapts an ordinary function to the Check contract.
type CheckFunc func(block, iv []byte) (raw []byte, valid bool, err error)

func (f CheckFunc) Check(block, iv []byte) ([]byte, bool, error) {
	return f(block, iv)
}

// FromDecrypter turns a whole-message oracle such as Decrypt, which only
// returns an error, into the block Check contract. raw is not observable
// through such an oracle and is always nil.
func FromDecrypter(decrypt func(iv, ciphertext []byte) error) CheckFunc {
	return func(block, iv []byte) ([]byte, bool, error) {
		return nil, decrypt(iv, block) == nil, nil
	}
}
