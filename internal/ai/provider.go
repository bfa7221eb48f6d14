package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// IEncoder produces fixed-length embeddings for item inputs and query text.
// Ready is closed once Init has succeeded.
type IEncoder interface {
	Init(ctx context.Context) error
	Ready() <-chan struct{}
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

type EncoderOptions struct {
	Model     string
	Dimension int
}

type EncoderFactory func(opts EncoderOptions, args interface{}) (IEncoder, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]EncoderFactory{}
)

func Register(name string, factory EncoderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func NewEncoder(name string, opts EncoderOptions, args interface{}) (IEncoder, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("encoder.provider is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported encoder provider: %s", name)
	}
	return factory(opts, args)
}

// WaitReady blocks until enc finished Init successfully or ctx is done.
func WaitReady(ctx context.Context, enc IEncoder) error {
	select {
	case <-enc.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readiness is embedded by encoders to expose the Ready signal.
type readiness struct {
	once sync.Once
	ch   chan struct{}
}

func newReadiness() readiness {
	return readiness{ch: make(chan struct{})}
}

func (r *readiness) Ready() <-chan struct{} {
	return r.ch
}

func (r *readiness) markReady() {
	r.once.Do(func() { close(r.ch) })
}
