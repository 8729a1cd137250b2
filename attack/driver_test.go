package attack

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aesgo "github.com/mario-areias/padding-oracle/aes-go"
	"github.com/mario-areias/padding-oracle/key"
	"github.com/mario-areias/padding-oracle/metrics"
	"github.com/mario-areias/padding-oracle/oracle"
)

func newOracle(t *testing.T, opts ...oracle.Option) *oracle.Oracle {
	t.Helper()
	o, err := oracle.New(opts...)
	require.NoError(t, err)
	return o
}

func TestSplit(t *testing.T) {
	blocks, err := Split([]byte("0123456789abcdefFEDCBA9876543210"), 16)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, []byte("0123456789abcdef"), blocks[0])
	assert.Equal(t, []byte("FEDCBA9876543210"), blocks[1])

	_, err = Split(nil, 16)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = Split(make([]byte, 17), 16)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = Split(make([]byte, 16), 0)
	assert.ErrorIs(t, err, ErrBlockSize)
}

func TestLongSecretMessage(t *testing.T) {
	o := newOracle(t)
	iv, ct, err := o.EncryptString("Long Secret Message")
	require.NoError(t, err)
	require.Len(t, ct, 32)

	r := newRecoverer(t, o, o.BlockSize())
	plain, err := NewDriver(r).Decrypt(context.Background(), iv, ct)
	require.NoError(t, err)

	unpadded, err := aesgo.RemovePadding(plain)
	require.NoError(t, err)
	assert.Equal(t, []byte("Long Secret Message"), unpadded)
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	lengths := []int{0, 1, 15, 16, 17, 31, 32, 33, 48}

	for _, cipherName := range []string{oracle.CipherAES, oracle.CipherAESGo} {
		for keyN := 0; keyN < 2; keyN++ {
			o := newOracle(t, oracle.WithCipher(cipherName), oracle.WithKey(key.Bit128()))
			r := newRecoverer(t, o, o.BlockSize())
			driver := NewDriver(r)

			for _, n := range lengths {
				msg := make([]byte, n)
				for i := range msg {
					msg[i] = byte(rng.IntN(256))
				}

				iv, ct, err := o.Encrypt(msg)
				require.NoError(t, err)

				plain, err := driver.Decrypt(context.Background(), iv, ct)
				require.NoError(t, err, "cipher=%s len=%d", cipherName, n)
				assert.Equal(t, aesgo.Pad(msg, aesgo.BlockSize), plain, "cipher=%s len=%d", cipherName, n)
			}
		}
	}
}

func TestBlockIndependence(t *testing.T) {
	o := newOracle(t)
	iv, ct, err := o.EncryptString("This is a really long secret string that is probably very hard to guess")
	require.NoError(t, err)

	r := newRecoverer(t, o, o.BlockSize())
	ctx := context.Background()

	sequential, err := NewDriver(r).Decrypt(ctx, iv, ct)
	require.NoError(t, err)

	parallel, err := NewDriver(r, WithWorkers(4)).Decrypt(ctx, iv, ct)
	require.NoError(t, err)
	assert.Equal(t, sequential, parallel)

	// recover the blocks back to front by hand
	blocks, err := Split(ct, o.BlockSize())
	require.NoError(t, err)
	reversed := make([][]byte, len(blocks))
	for k := len(blocks) - 1; k >= 0; k-- {
		prev := iv
		if k > 0 {
			prev = blocks[k-1]
		}
		reversed[k], err = r.RecoverBlock(ctx, blocks[k], prev)
		require.NoError(t, err)
	}
	assert.Equal(t, sequential, bytes.Join(reversed, nil))
}

func TestDriverProgressAndMetrics(t *testing.T) {
	o := newOracle(t, oracle.WithCipher(oracle.CipherAESGo))
	iv, ct, err := o.EncryptString("Let's test if this attack works!!")
	require.NoError(t, err)
	total := len(ct) / o.BlockSize()

	m := metrics.New(prometheus.NewRegistry())
	r := newRecoverer(t, o, o.BlockSize(), WithMetrics(m))

	var seen []int
	_, err = NewDriver(r, WithWorkers(2), WithProgress(func(done, n int) {
		assert.Equal(t, total, n)
		seen = append(seen, done)
	})).Decrypt(context.Background(), iv, ct)
	require.NoError(t, err)

	assert.Len(t, seen, total)
	assert.Equal(t, total, seen[len(seen)-1])
	assert.Equal(t, float64(total), testutil.ToFloat64(m.BlocksRecovered))
	assert.Equal(t, float64(total*o.BlockSize()), testutil.ToFloat64(m.BytesRecovered))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BlocksFailed))
}

func TestDriverStopsOnExhaustion(t *testing.T) {
	never := oracle.CheckFunc(func(block, iv []byte) ([]byte, bool, error) {
		return nil, false, nil
	})
	r := newRecoverer(t, never, 16)

	for _, workers := range []int{1, 3} {
		plain, err := NewDriver(r, WithWorkers(workers)).Decrypt(context.Background(), make([]byte, 16), make([]byte, 48))
		assert.ErrorIs(t, err, ErrRecoveryExhausted)
		assert.Nil(t, plain)
	}
}

func TestDriverRejectsMalformedInput(t *testing.T) {
	r := newRecoverer(t, &identityOracle{blockSize: 16}, 16)
	d := NewDriver(r)

	_, err := d.Decrypt(context.Background(), make([]byte, 8), make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = d.Decrypt(context.Background(), make([]byte, 16), make([]byte, 20))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = d.Decrypt(context.Background(), make([]byte, 16), nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
