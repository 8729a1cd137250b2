package attack

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Driver walks a whole ciphertext block by block.
type Driver struct {
	recoverer *Recoverer
	workers   int
	progress  func(done, total int)
	logger    *zap.Logger
}

type DriverOption func(*Driver)

// WithWorkers recovers up to n blocks at once. Blocks are independent, so
// the output is the same as with a single worker.
func WithWorkers(n int) DriverOption {
	return func(d *Driver) { d.workers = n }
}

// WithProgress registers a callback invoked after every recovered block.
// Calls are serialised.
func WithProgress(fn func(done, total int)) DriverOption {
	return func(d *Driver) { d.progress = fn }
}

func WithDriverLogger(l *zap.Logger) DriverOption {
	return func(d *Driver) { d.logger = l }
}

func NewDriver(r *Recoverer, opts ...DriverOption) *Driver {
	d := &Driver{
		recoverer: r,
		workers:   1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		d.workers = 1
	}
	return d
}

// Decrypt recovers every block of ciphertext and returns the concatenated
// plaintext, padding included. The first block is chained to iv, every other
// block to the ciphertext block before it. Any failed block fails the whole
// call.
func (d *Driver) Decrypt(ctx context.Context, iv, ciphertext []byte) ([]byte, error) {
	bs := d.recoverer.BlockSize()
	if len(iv) != bs {
		return nil, fmt.Errorf("%w: iv has %d bytes, want %d", ErrInvalidCiphertext, len(iv), bs)
	}

	blocks, err := Split(ciphertext, bs)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	tracker := &progressTracker{total: len(blocks), fn: d.progress}

	if d.workers == 1 {
		for k := range blocks {
			if err := d.recoverInto(ctx, plaintext, blocks, iv, k, tracker); err != nil {
				return nil, err
			}
		}
		return plaintext, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for k := range blocks {
		g.Go(func() error {
			return d.recoverInto(gctx, plaintext, blocks, iv, k, tracker)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plaintext, nil
}

func (d *Driver) recoverInto(ctx context.Context, plaintext []byte, blocks [][]byte, iv []byte, k int, tracker *progressTracker) error {
	prev := iv
	if k > 0 {
		prev = blocks[k-1]
	}

	d.logger.Debug("recovering block", zap.Int("block", k), zap.Int("total", len(blocks)))

	pt, err := d.recoverer.RecoverBlock(ctx, blocks[k], prev)
	if err != nil {
		d.logger.Error("block recovery failed", zap.Int("block", k), zap.Error(err))
		return fmt.Errorf("block %d: %w", k, err)
	}

	bs := len(pt)
	copy(plaintext[k*bs:(k+1)*bs], pt)

	done := tracker.inc()
	d.logger.Info("block recovered", zap.Int("block", k), zap.Int("done", done), zap.Int("total", len(blocks)))
	return nil
}

type progressTracker struct {
	mu    sync.Mutex
	done  int
	total int
	fn    func(done, total int)
}

func (p *progressTracker) inc() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
	return p.done
}
