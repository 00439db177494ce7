// Package parallel provides the worker fan-out used by the CPU kernels and the
// parameter loader.
package parallel

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// Sequential returns a config that runs everything on the calling goroutine.
func Sequential() Config {
	return Config{NumWorkers: 1, MinChunkSize: 1}
}

// workers returns the effective worker count for n items.
func (c Config) workers(n int) int {
	if !c.Enabled || c.NumWorkers <= 1 || n <= 1 {
		return 1
	}
	return min(c.NumWorkers, n)
}

// For executes f(i) for i in [0, n).
// Runs sequentially if parallelism is disabled or n is below MinChunkSize.
// A panic in f is re-raised on the calling goroutine.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.workers(n) == 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)

	var wg conc.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Go(func() {
			for i := start; i < end; i++ {
				f(i)
			}
		})
	}
	wg.Wait()
}

// ForBatch iterates the batch*channels grid used by convolution and pooling.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	n := batch * channels
	For(n, func(k int) {
		f(k/channels, k%channels)
	}, cfg)
}

// Map runs f for every item with at most cfg workers in flight and returns
// the results in input order. The first error cancels ctx for the remaining
// calls and is the only error returned.
func Map[In, Out any](ctx context.Context, items []In, cfg Config, f func(ctx context.Context, item In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(items))
	if len(items) == 0 {
		return out, nil
	}

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(cfg.workers(len(items)))

	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			v, err := f(ctx, item)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
