package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	TokenCount int       // 使用的token数
	ModelName  string    // 使用的模型名称
	FinishTime time.Time // 完成时间
}

// 常用模型名称
const (
	ModelGroqSmall   = "llama3-8b-8192"  // Groq 小模型，简洁模式默认
	ModelGroqLarge   = "llama3-70b-8192" // Groq 大模型，详细模式和资讯默认
	ModelGeminiPro   = "gemini-pro"
	ModelGeminiFlash = "gemini-2.0-flash"
	ModelOpenAIMini  = "gpt-4o-mini"
	ModelOllama      = "llama3"
)
