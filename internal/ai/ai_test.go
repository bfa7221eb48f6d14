package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubEncoder struct {
	readiness
	delay time.Duration
}

func (s *stubEncoder) Init(ctx context.Context) error {
	s.markReady()
	return nil
}

func (s *stubEncoder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	time.Sleep(s.delay)
	return []float32{1}, nil
}

func (s *stubEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	time.Sleep(s.delay)
	return []float32{2}, nil
}

func (s *stubEncoder) ModelName() string {
	return "stub"
}

func TestNewEncoderRegistry(t *testing.T) {
	_, err := NewEncoder("", EncoderOptions{}, nil)
	require.Error(t, err)
	_, err = NewEncoder("missing", EncoderOptions{}, nil)
	require.Error(t, err)

	enc, err := NewEncoder("Gemini", EncoderOptions{Dimension: 512}, map[string]interface{}{"api_key": "k"})
	require.NoError(t, err)
	require.Equal(t, "gemini-embedding-001", enc.ModelName())
}

func TestGeminiInitWithoutKeyIsUnavailable(t *testing.T) {
	enc, err := NewEncoder("gemini", EncoderOptions{}, map[string]interface{}{})
	require.NoError(t, err)
	require.ErrorIs(t, enc.Init(context.Background()), ErrUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, WaitReady(ctx, enc), context.DeadlineExceeded)
}

func TestGeminiEmbedImageClassifiesInput(t *testing.T) {
	enc, err := NewEncoder("gemini", EncoderOptions{}, map[string]interface{}{"api_key": "k"})
	require.NoError(t, err)
	dir := t.TempDir()

	_, err = enc.EmbedImage(context.Background(), filepath.Join(dir, "absent.jpg"))
	require.ErrorIs(t, err, ErrPlatform)
	require.True(t, IsClassified(err))

	textPath := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("plain text, not an image"), 0o644))
	_, err = enc.EmbedImage(context.Background(), textPath)
	require.ErrorIs(t, err, ErrInvalidFormat)
	require.True(t, IsClassified(err))
}

func TestIsClassified(t *testing.T) {
	require.True(t, IsClassified(fmt.Errorf("wrap: %w", ErrInvalidFormat)))
	require.True(t, IsClassified(fmt.Errorf("wrap: %w", ErrPlatform)))
	require.False(t, IsClassified(errors.New("boom")))
	require.False(t, IsClassified(ErrUnavailable))
}

func TestWithTimeout(t *testing.T) {
	slow := &stubEncoder{readiness: newReadiness(), delay: 200 * time.Millisecond}
	enc := WithTimeout(slow, 20*time.Millisecond)
	_, err := enc.EmbedImage(context.Background(), "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	fast := &stubEncoder{readiness: newReadiness()}
	enc = WithTimeout(fast, time.Second)
	values, err := enc.EmbedText(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, []float32{2}, values)
	require.Equal(t, "stub", enc.ModelName())

	require.NoError(t, enc.Init(context.Background()))
	require.NoError(t, WaitReady(context.Background(), enc))
}
