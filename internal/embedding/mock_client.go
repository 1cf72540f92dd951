package embedding

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 基于testify的嵌入客户端模拟实现
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

// Embed 模拟单条嵌入
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	var v []float32
	if fn, ok := args.Get(0).(func(context.Context, string) []float32); ok {
		v = fn(ctx, text)
	} else if args.Get(0) != nil {
		v = args.Get(0).([]float32)
	}
	return v, args.Error(1)
}

// EmbedBatch 模拟批量嵌入
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	var v [][]float32
	if fn, ok := args.Get(0).(func(context.Context, []string) [][]float32); ok {
		v = fn(ctx, texts)
	} else if args.Get(0) != nil {
		v = args.Get(0).([][]float32)
	}
	return v, args.Error(1)
}

// Name 模拟模型名称
func (m *MockClient) Name() string {
	args := m.Called()
	return args.String(0)
}
