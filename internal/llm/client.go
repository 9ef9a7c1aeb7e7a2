// Package llm OpenAI 兼容网关的对话客户端
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Message 一条对话消息
type Message struct {
	Role    string `json:"role"` // "system" / "user" / "assistant"
	Content string `json:"content"`
}

// Client 文本生成客户端
type Client interface {
	Generate(ctx context.Context, messages []Message) (string, error)
	Model() string
}

// Config 网关配置
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// chatRequest OpenAI 兼容的 chat/completions 请求体
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GatewayClient 基于 resty 的 OpenAI 兼容实现
type GatewayClient struct {
	http   *resty.Client
	logger *zap.Logger
	config Config
}

// NewGatewayClient 创建网关客户端
func NewGatewayClient(config Config, logger *zap.Logger) (*GatewayClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("LLM 网关地址不能为空")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("LLM 模型名不能为空")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	http := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")
	if config.APIKey != "" {
		http.SetAuthToken(config.APIKey)
	}

	return &GatewayClient{
		http:   http,
		logger: logger.With(zap.String("component", "llm_client"), zap.String("model", config.Model)),
		config: config,
	}, nil
}

// Model 当前使用的模型名
func (c *GatewayClient) Model() string {
	return c.config.Model
}

// Generate 发起一次对话补全，返回首个候选的文本
// 不在本层做重试；重试与熔断由上层的弹性层负责
func (c *GatewayClient) Generate(ctx context.Context, messages []Message) (string, error) {
	req := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	var out chatResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("调用LLM网关失败: %w", err)
	}

	if resp.IsError() {
		if out.Error != nil {
			return "", fmt.Errorf("LLM网关返回错误 [%d %s]: %s", resp.StatusCode(), out.Error.Type, out.Error.Message)
		}
		return "", fmt.Errorf("LLM网关返回错误 [%d]: %s", resp.StatusCode(), resp.String())
	}

	if len(out.Choices) == 0 {
		return "", fmt.Errorf("LLM响应不含候选内容")
	}

	c.logger.Debug("LLM调用完成",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", out.Usage.PromptTokens),
		zap.Int("completion_tokens", out.Usage.CompletionTokens),
		zap.String("finish_reason", out.Choices[0].FinishReason))

	return out.Choices[0].Message.Content, nil
}
