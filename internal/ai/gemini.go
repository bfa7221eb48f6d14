package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"
)

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

type geminiConfig struct {
	APIKey string `json:"api_key"`
}

type geminiEncoder struct {
	readiness
	apiKey    string
	model     string
	dimension int32

	mu     sync.RWMutex
	client *genai.Client
}

func (e *geminiEncoder) Init(ctx context.Context) error {
	if e.apiKey == "" {
		return ErrUnavailable
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}
	e.mu.Lock()
	e.client = client
	e.mu.Unlock()
	e.markReady()
	return nil
}

func (e *geminiEncoder) ModelName() string {
	return e.model
}

func (e *geminiEncoder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: input %s missing", ErrPlatform, path)
		}
		return nil, err
	}
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: unsupported mime %s", ErrInvalidFormat, mtype.String())
	}
	part := &genai.Part{InlineData: &genai.Blob{MIMEType: mtype.String(), Data: data}}
	return e.embed(ctx, part, taskRetrievalDocument)
}

func (e *geminiEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, &genai.Part{Text: text}, taskRetrievalQuery)
}

func (e *geminiEncoder) embed(ctx context.Context, part *genai.Part, taskType string) ([]float32, error) {
	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()
	if client == nil {
		return nil, ErrUnavailable
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if e.dimension > 0 {
		dim := e.dimension
		config.OutputDimensionality = &dim
	}
	resp, err := client.Models.EmbedContent(ctx, e.model, []*genai.Content{{Parts: []*genai.Part{part}}}, config)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

func createGeminiEncoder(opts EncoderOptions, args interface{}) (IEncoder, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &geminiEncoder{
		readiness: newReadiness(),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		model:     model,
		dimension: int32(opts.Dimension),
	}, nil
}

func init() {
	Register("gemini", createGeminiEncoder)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("encoder config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode encoder config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode encoder config: %w", err)
	}
	return nil
}
