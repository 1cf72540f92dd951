package services

import (
	"context"
	"errors"
	"strings"

	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/fyerfyer/esg-insight/internal/vectordb"
)

// Outcome 单个回答策略的结果类型
type Outcome int

const (
	// OutcomeAnswered 产生了可用的回答
	OutcomeAnswered Outcome = iota
	// OutcomeNoAnswer 没有可用回答，交给下一个策略
	OutcomeNoAnswer
	// OutcomeFailed 调用失败，终止整个链
	OutcomeFailed
)

// String 返回结果类型名称
func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeNoAnswer:
		return "no_answer"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StrategyResult 策略的带标签结果
type StrategyResult struct {
	Strategy string
	Outcome  Outcome
	Text     string
	Model    string
	Sources  []llm.SourceReference
	Reason   string // OutcomeNoAnswer 时说明原因
	Err      error  // OutcomeFailed 时的原因
	Grounded bool   // 回答是否基于检索片段
}

// AnswerRequest 策略的输入
type AnswerRequest struct {
	Query   string
	Mode    Mode
	Matches []vectordb.Match
	History []llm.Message
	Client  llm.Client // 当前模式对应的大模型
}

// AnswerStrategy 一种产生回答的方式
type AnswerStrategy interface {
	Name() string
	Attempt(ctx context.Context, req *AnswerRequest) StrategyResult
}

// ErrNoStrategyAnswered 所有策略都没有产生回答
var ErrNoStrategyAnswered = errors.New("no answer strategy produced an answer")

// RunStrategies 依次尝试策略
// 第一个 OutcomeAnswered 立即返回，OutcomeFailed 终止并返回错误，OutcomeNoAnswer 继续下一个
func RunStrategies(ctx context.Context, req *AnswerRequest, strategies ...AnswerStrategy) (StrategyResult, []StrategyResult, error) {
	attempts := make([]StrategyResult, 0, len(strategies))
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return StrategyResult{}, attempts, err
		}

		res := s.Attempt(ctx, req)
		res.Strategy = s.Name()
		attempts = append(attempts, res)

		switch res.Outcome {
		case OutcomeAnswered:
			return res, attempts, nil
		case OutcomeFailed:
			return res, attempts, res.Err
		}
	}
	return StrategyResult{Outcome: OutcomeNoAnswer}, attempts, ErrNoStrategyAnswered
}

// DefaultDenyList 表示模型没有找到答案的短语
var DefaultDenyList = []string{
	"i don't know",
	"i do not know",
	"not mentioned in the context",
	"no information",
	"cannot find",
}

// containsDenied 不区分大小写判断是否包含拒答短语
func containsDenied(text string, denyList []string) bool {
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	for _, phrase := range denyList {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// GroundedStrategy 基于检索片段生成回答
type GroundedStrategy struct {
	RAG      *llm.RAGService
	MinScore float32  // 最相似片段的最低得分
	DenyList []string // 拒答短语
}

// Name 策略名称
func (g *GroundedStrategy) Name() string {
	return "grounded"
}

// Attempt 检索为空、相似度不足或模型拒答时返回 OutcomeNoAnswer
func (g *GroundedStrategy) Attempt(ctx context.Context, req *AnswerRequest) StrategyResult {
	if len(req.Matches) == 0 {
		return StrategyResult{Outcome: OutcomeNoAnswer, Reason: "retrieval returned no chunks"}
	}
	if best := req.Matches[0].Score; best < g.MinScore {
		return StrategyResult{Outcome: OutcomeNoAnswer, Reason: "best chunk below grounding threshold"}
	}

	sources := make([]llm.SourceReference, len(req.Matches))
	for i, m := range req.Matches {
		sources[i] = llm.SourceReference{
			SourceID: m.Chunk.SourceID,
			Offset:   m.Chunk.Offset,
			Content:  m.Chunk.Content,
			Score:    m.Score,
		}
	}

	resp, err := g.RAG.Answer(ctx, req.Client, req.Query, sources, req.History)
	if err != nil {
		return StrategyResult{Outcome: OutcomeFailed, Err: err}
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return StrategyResult{Outcome: OutcomeNoAnswer, Reason: "model returned empty text", Model: resp.Model}
	}

	denyList := g.DenyList
	if denyList == nil {
		denyList = DefaultDenyList
	}
	if containsDenied(resp.Answer, denyList) {
		return StrategyResult{Outcome: OutcomeNoAnswer, Reason: "model declined to answer", Model: resp.Model}
	}

	return StrategyResult{
		Outcome:  OutcomeAnswered,
		Text:     resp.Answer,
		Model:    resp.Model,
		Sources:  sources,
		Grounded: true,
	}
}

// SearchStrategy 不基于检索的通用搜索回答，只尝试一次
type SearchStrategy struct {
	RAG *llm.RAGService
}

// Name 策略名称
func (s *SearchStrategy) Name() string {
	return "search"
}

// Attempt 请求模型给出搜索结果
func (s *SearchStrategy) Attempt(ctx context.Context, req *AnswerRequest) StrategyResult {
	resp, err := s.RAG.Search(ctx, req.Client, req.Query)
	if err != nil {
		return StrategyResult{Outcome: OutcomeFailed, Err: err}
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return StrategyResult{Outcome: OutcomeNoAnswer, Reason: "search returned empty text", Model: resp.Model}
	}
	return StrategyResult{Outcome: OutcomeAnswered, Text: resp.Answer, Model: resp.Model}
}
