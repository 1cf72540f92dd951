package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于testify的大模型客户端模拟实现
type MockClient struct {
	mock.Mock
}

// NewMockClient 创建模拟客户端，并在测试结束时校验期望
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Generate 模拟单轮生成，可变参数不参与匹配
func (m *MockClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, prompt)
	var resp *Response
	if fn, ok := args.Get(0).(func(context.Context, string) *Response); ok {
		resp = fn(ctx, prompt)
	} else if args.Get(0) != nil {
		resp = args.Get(0).(*Response)
	}
	return resp, args.Error(1)
}

// Chat 模拟多轮对话
func (m *MockClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, messages)
	var resp *Response
	if args.Get(0) != nil {
		resp = args.Get(0).(*Response)
	}
	return resp, args.Error(1)
}

// Name 模拟模型名称
func (m *MockClient) Name() string {
	args := m.Called()
	return args.String(0)
}
