package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/life2you_mini/quorum/internal/llm"
)

// MockLLMClient LLM客户端的模拟实现
type MockLLMClient struct {
	mock.Mock
}

// Generate 文本生成的模拟实现
func (m *MockLLMClient) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

// Model 模型名的模拟实现
func (m *MockLLMClient) Model() string {
	args := m.Called()
	return args.String(0)
}
