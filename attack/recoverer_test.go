package attack

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aesgo "github.com/mario-areias/padding-oracle/aes-go"
	"github.com/mario-areias/padding-oracle/metrics"
	"github.com/mario-areias/padding-oracle/oracle"
)

// identityOracle treats the block itself as its decryption, so the test
// controls the intermediate value D directly. Every probe IV is recorded.
type identityOracle struct {
	blockSize int
	probes    [][]byte
}

func (o *identityOracle) Check(block, iv []byte) ([]byte, bool, error) {
	o.probes = append(o.probes, bytes.Clone(iv))
	raw := make([]byte, len(block))
	for i := range block {
		raw[i] = block[i] ^ iv[i]
	}
	return raw, aesgo.ValidPadding(raw, o.blockSize), nil
}

func newRecoverer(t *testing.T, o PaddingOracle, blockSize int, opts ...RecovererOption) *Recoverer {
	t.Helper()
	r, err := NewRecoverer(o, blockSize, opts...)
	require.NoError(t, err)
	return r
}

func TestNewRecovererBlockSize(t *testing.T) {
	for _, bs := range []int{-1, 0, 1, 256} {
		_, err := NewRecoverer(&identityOracle{}, bs)
		assert.ErrorIs(t, err, ErrBlockSize, "block size %d", bs)
	}
	for _, bs := range []int{2, 8, 16, 255} {
		_, err := NewRecoverer(&identityOracle{}, bs)
		assert.NoError(t, err, "block size %d", bs)
	}
}

func TestProbeIV(t *testing.T) {
	r := newRecoverer(t, &identityOracle{}, 8)
	d := []byte{0, 0, 0, 0, 0, 0x10, 0x20, 0x30}

	probe := r.probeIV(d, 4, 0xaa, 4)
	assert.Equal(t, []byte{0, 0, 0, 0, 0xaa, 0x10 ^ 4, 0x20 ^ 4, 0x30 ^ 4}, probe)

	probe = r.probeIV(d, 7, 0x01, 1)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0x01}, probe)
}

func TestRecoverIntermediate(t *testing.T) {
	tests := []struct {
		name  string
		block []byte
	}{
		{name: "zeros", block: make([]byte, 16)},
		{name: "ascii", block: []byte("Let's test it!!!")},
		{name: "looks padded", block: bytes.Repeat([]byte{0x10}, 16)},
		{name: "ends in 02 02", block: []byte("fourteen bytes\x02\x02")},
		{name: "eight byte block", block: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o := &identityOracle{blockSize: len(test.block)}
			r := newRecoverer(t, o, len(test.block))

			d, err := r.RecoverIntermediate(context.Background(), test.block)
			require.NoError(t, err)
			assert.Equal(t, test.block, d)
		})
	}
}

func TestRecoverBlockXorsPredecessor(t *testing.T) {
	block := []byte("0123456789abcdef")
	prev := []byte("fedcba9876543210")

	r := newRecoverer(t, &identityOracle{blockSize: 16}, 16)
	plain, err := r.RecoverBlock(context.Background(), block, prev)
	require.NoError(t, err)

	want := make([]byte, 16)
	for i := range want {
		want[i] = block[i] ^ prev[i]
	}
	assert.Equal(t, want, plain)
}

func TestLastByteFalsePositiveIsRejected(t *testing.T) {
	// With a zero probe prefix, D[14] = 0x02 makes guess 1 produce a valid
	// "02 02" pad before the genuine "01" at guess 2.
	block := make([]byte, 16)
	block[14] = 0x02
	block[15] = 0x03

	o := &identityOracle{blockSize: 16}
	m := metrics.New(prometheus.NewRegistry())
	r := newRecoverer(t, o, 16, WithMetrics(m))

	d, err := r.RecoverIntermediate(context.Background(), block)
	require.NoError(t, err)
	assert.Equal(t, block, d)

	require.GreaterOrEqual(t, len(o.probes), 5)
	// guess 0: invalid
	assert.Equal(t, byte(0), o.probes[0][15])
	// guess 1: valid, then the confirmation probe perturbs byte 14 and fails
	assert.Equal(t, byte(1), o.probes[1][15])
	assert.Equal(t, byte(0), o.probes[1][14])
	assert.Equal(t, byte(1), o.probes[2][15])
	assert.Equal(t, byte(1), o.probes[2][14])
	// guess 2: valid and confirmed
	assert.Equal(t, byte(2), o.probes[3][15])
	assert.Equal(t, byte(2), o.probes[4][15])
	assert.Equal(t, byte(1), o.probes[4][14])
	// byte 14 is solved next with a pad of 2
	assert.Equal(t, byte(0x03^0x02), o.probes[5][15])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FalsePositives))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OracleQueries.WithLabelValues(metrics.KindConfirm)))
	assert.Equal(t, 16.0, testutil.ToFloat64(m.BytesRecovered))
}

func TestRecoveryExhausted(t *testing.T) {
	calls := 0
	never := oracle.CheckFunc(func(block, iv []byte) ([]byte, bool, error) {
		calls++
		return nil, false, nil
	})

	r := newRecoverer(t, never, 16)
	_, err := r.RecoverBlock(context.Background(), make([]byte, 16), make([]byte, 16))

	require.ErrorIs(t, err, ErrRecoveryExhausted)
	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 15, exhausted.Index)
	assert.Equal(t, 256, exhausted.Guesses)
	assert.Equal(t, 256, calls)
}

func TestRecoveryExhaustedWhenNothingConfirms(t *testing.T) {
	calls := 0
	// every first probe is valid, every confirmation (byte 14 set) is not
	unconfirmed := oracle.CheckFunc(func(block, iv []byte) ([]byte, bool, error) {
		calls++
		return nil, iv[14] == 0, nil
	})

	r := newRecoverer(t, unconfirmed, 16)
	_, err := r.RecoverIntermediate(context.Background(), make([]byte, 16))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 15, exhausted.Index)
	assert.Equal(t, 512, calls)
}

func TestRecoveryExhaustedAtInnerByte(t *testing.T) {
	// Only a last probe byte of 0x05 is ever valid: byte 15 resolves to
	// 0x05 ^ 0x01, after which byte 14 can never be satisfied.
	only5 := oracle.CheckFunc(func(block, iv []byte) ([]byte, bool, error) {
		return nil, iv[15] == 0x05, nil
	})

	r := newRecoverer(t, only5, 16)
	_, err := r.RecoverIntermediate(context.Background(), make([]byte, 16))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 14, exhausted.Index)
}

func TestOracleErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	calls := 0
	failing := oracle.CheckFunc(func(block, iv []byte) ([]byte, bool, error) {
		calls++
		return nil, false, boom
	})

	r := newRecoverer(t, failing, 16)
	_, err := r.RecoverBlock(context.Background(), make([]byte, 16), make([]byte, 16))

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrRecoveryExhausted)
	assert.Equal(t, 1, calls)
}

func TestRecoverBlockHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &identityOracle{blockSize: 16}
	r := newRecoverer(t, o, 16)
	_, err := r.RecoverBlock(ctx, make([]byte, 16), make([]byte, 16))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, o.probes)
}

func TestRecoverBlockRejectsWrongLengths(t *testing.T) {
	r := newRecoverer(t, &identityOracle{blockSize: 16}, 16)

	_, err := r.RecoverBlock(context.Background(), make([]byte, 15), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = r.RecoverBlock(context.Background(), make([]byte, 16), make([]byte, 8))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
