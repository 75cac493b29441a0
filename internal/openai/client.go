package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	DefaultChatModel      = openai.GPT4oMini

	embedBatchMax = 16
)

// ErrEmptyEmbedding is returned when the provider answers without a vector
// for one of the inputs.
var ErrEmptyEmbedding = errors.New("empty embedding")

type Client struct {
	client         *openai.Client
	embeddingModel string
	chatModel      string
	dimensions     int
	maxTokens      int
}

type Options struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Dimensions     int // 0 leaves the provider default
	MaxTokens      int
}

func New(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = DefaultEmbeddingModel
	}
	if opts.ChatModel == "" {
		opts.ChatModel = DefaultChatModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: opts.EmbeddingModel,
		chatModel:      opts.ChatModel,
		dimensions:     opts.Dimensions,
		maxTokens:      opts.MaxTokens,
	}
}

// Embed returns one vector per input text, in input order. Inputs are sent
// in batches; any failed batch fails the whole call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float64, 0, len(texts))
	for _, batch := range lo.Chunk(texts, embedBatchMax) {
		req := openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(c.embeddingModel),
			Dimensions: c.dimensions,
		}
		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("create embeddings: %w", err)
		}

		vecs := make([][]float64, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("embedding index %d out of range", d.Index)
			}
			vecs[d.Index] = lo.Map(d.Embedding, func(f float32, _ int) float64 { return float64(f) })
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("input %d: %w", len(out)+i, ErrEmptyEmbedding)
			}
		}
		out = append(out, vecs...)

		slog.Debug("embedded batch",
			"model", c.embeddingModel,
			"inputs", len(batch),
			"prompt_tokens", resp.Usage.PromptTokens,
		)
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Complete runs a single-turn chat completion and returns the first choice's
// content. An empty choice list yields "".
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.chatModel,
		MaxTokens:   c.maxTokens,
		Temperature: float32(temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
