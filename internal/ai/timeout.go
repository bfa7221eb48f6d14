package ai

import (
	"context"
	"time"
)

// WithTimeout runs every model call of enc on its own goroutine and gives up
// after d. A call that ignores its context keeps running in the background but
// no longer holds the caller.
func WithTimeout(enc IEncoder, d time.Duration) IEncoder {
	if enc == nil || d <= 0 {
		return enc
	}
	return &timeoutEncoder{IEncoder: enc, timeout: d}
}

type timeoutEncoder struct {
	IEncoder
	timeout time.Duration
}

type embedResult struct {
	values []float32
	err    error
}

func (t *timeoutEncoder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	return t.await(ctx, func(ctx context.Context) ([]float32, error) {
		return t.IEncoder.EmbedImage(ctx, path)
	})
}

func (t *timeoutEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return t.await(ctx, func(ctx context.Context) ([]float32, error) {
		return t.IEncoder.EmbedText(ctx, text)
	})
}

func (t *timeoutEncoder) await(ctx context.Context, fn func(ctx context.Context) ([]float32, error)) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	done := make(chan embedResult, 1)
	go func() {
		values, err := fn(ctx)
		done <- embedResult{values: values, err: err}
	}()
	select {
	case res := <-done:
		return res.values, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
