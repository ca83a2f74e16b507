package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultModel はオラクルに使う既定のモデル。採点は短い応答で足りるため軽量モデルを使う。
	DefaultModel = "claude-3-5-haiku-20241022"
	// DefaultMaxTokens は応答の最大トークン数の既定値。
	DefaultMaxTokens = 512
)

// Generator はプロンプトからテキストを生成する外部サービスを抽象化する。
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AnthropicConfig はAnthropicGeneratorの設定。
type AnthropicConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int
	BaseURL    string       // 空なら既定のエンドポイント
	HTTPClient *http.Client // nilならSDKの既定クライアント
}

// AnthropicGenerator はAnthropic Messages APIを使うGenerator実装。
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

var _ Generator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator はAnthropicGeneratorを生成する。
// APIキーが空の場合はエラーを返す。リトライは行わず、失敗は呼び出し側のフォールバックに任せる。
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Generate はプロンプトを送信し、応答のテキストブロックを連結して返す。
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("anthropic response contained no text")
	}
	return b.String(), nil
}
