// Package attack recovers CBC plaintext from a padding oracle without the key.
package attack

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mario-areias/padding-oracle/metrics"
)

// guesses is the number of candidate values for one byte.
const guesses = 256

// PaddingOracle decrypts a single block under a caller-chosen IV and reports
// whether the result has valid PKCS#7 padding.
type PaddingOracle interface {
	Check(block, iv []byte) (raw []byte, valid bool, err error)
}

// Recoverer recovers one ciphertext block at a time. It holds no per-block
// state, so one Recoverer may serve several goroutines.
type Recoverer struct {
	oracle    PaddingOracle
	blockSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

type RecovererOption func(*Recoverer)

func WithLogger(l *zap.Logger) RecovererOption {
	return func(r *Recoverer) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) RecovererOption {
	return func(r *Recoverer) { r.metrics = m }
}

// NewRecoverer returns a Recoverer for blocks of blockSize bytes. The block
// size must leave room for the confirmation byte and fit a pad value in a
// byte, so it is limited to [2, 255].
func NewRecoverer(o PaddingOracle, blockSize int, opts ...RecovererOption) (*Recoverer, error) {
	if blockSize < 2 || blockSize > 255 {
		return nil, fmt.Errorf("%w: %d", ErrBlockSize, blockSize)
	}

	r := &Recoverer{
		oracle:    o,
		blockSize: blockSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Recoverer) BlockSize() int {
	return r.blockSize
}

// RecoverBlock returns the plaintext of block, given the block that precedes
// it in the ciphertext (the IV for the first block).
func (r *Recoverer) RecoverBlock(ctx context.Context, block, prev []byte) ([]byte, error) {
	if len(prev) != r.blockSize {
		return nil, fmt.Errorf("%w: predecessor has %d bytes, want %d", ErrInvalidCiphertext, len(prev), r.blockSize)
	}

	start := time.Now()
	d, err := r.RecoverIntermediate(ctx, block)
	r.metrics.BlockDone(time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	// the final step to decrypt in CBC is to XOR against the previous ciphertext block
	plain := make([]byte, r.blockSize)
	subtle.XORBytes(plain, d, prev)
	return plain, nil
}

// RecoverIntermediate returns D, the raw block decryption of block before the
// CBC XOR. Bytes are solved from last to first; each solved byte is folded
// into the probes for the next one.
func (r *Recoverer) RecoverIntermediate(ctx context.Context, block []byte) ([]byte, error) {
	if len(block) != r.blockSize {
		return nil, fmt.Errorf("%w: block has %d bytes, want %d", ErrInvalidCiphertext, len(block), r.blockSize)
	}

	d := make([]byte, r.blockSize)
	for i := r.blockSize - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b, err := r.recoverByte(block, d, i)
		if err != nil {
			return nil, err
		}
		d[i] = b
		r.metrics.ByteRecovered()
	}

	return d, nil
}

// recoverByte finds D[i], assuming d[i+1:] is already known.
//
// The oracle accepts a probe when D XOR probe ends in pad bytes of value pad.
// The bytes after i are forced to pad by probe[j] = D[j] ^ pad, so the only
// free byte is i, and the guess g that makes it valid gives D[i] = g ^ pad.
// For example, with D[15] = 0x2f the last byte is solved by g = 0x2e
// (0x2f ^ 0x2e = 0x01). To solve byte 14 the last probe byte becomes
// 0x2f ^ 0x02 = 0x2d and byte 14 is searched until it also decrypts to 0x02.
func (r *Recoverer) recoverByte(block, d []byte, i int) (byte, error) {
	pad := byte(r.blockSize - i)
	last := i == r.blockSize-1

	for g := 0; g < guesses; g++ {
		probe := r.probeIV(d, i, byte(g), pad)

		valid, err := r.query(block, probe, metrics.KindProbe)
		if err != nil {
			return 0, fmt.Errorf("oracle check for byte %d: %w", i, err)
		}
		if !valid {
			continue
		}

		if !last {
			r.logger.Debug("byte recovered", zap.Int("index", i), zap.Int("guess", g))
			return byte(g) ^ pad, nil
		}

		// A pad of 1 is satisfied by any last byte, so the plaintext may really
		// end in a longer pad such as 02 02. Changing the byte before it breaks
		// any longer pad but leaves a genuine 01 intact.
		probe[i-1]++
		valid, err = r.query(block, probe, metrics.KindConfirm)
		if err != nil {
			return 0, fmt.Errorf("oracle confirmation for byte %d: %w", i, err)
		}
		if valid {
			r.logger.Debug("last byte confirmed", zap.Int("index", i), zap.Int("guess", g))
			return byte(g) ^ pad, nil
		}

		r.metrics.FalsePositive()
		r.logger.Debug("last byte false positive", zap.Int("index", i), zap.Int("guess", g))
	}

	return 0, &ExhaustedError{Index: i, Guesses: guesses}
}

// probeIV builds a fresh IV: zeros before i, the guess at i, and the known
// intermediate bytes after i XORed with pad.
func (r *Recoverer) probeIV(d []byte, i int, g, pad byte) []byte {
	probe := make([]byte, r.blockSize)
	probe[i] = g
	for j := i + 1; j < r.blockSize; j++ {
		probe[j] = d[j] ^ pad
	}
	return probe
}

func (r *Recoverer) query(block, iv []byte, kind string) (bool, error) {
	r.metrics.Query(kind)
	_, valid, err := r.oracle.Check(block, iv)
	return valid, err
}
