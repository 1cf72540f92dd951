package scoring

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"
)

// Category ESG 评分维度
type Category string

const (
	Environmental Category = "Environmental"
	Social        Category = "Social"
	Governance    Category = "Governance"
)

// Categories 固定的维度顺序，报告和残差分配都依赖这个顺序
var Categories = []Category{Environmental, Social, Governance}

// markerTerms 每个维度的五个小写标记词
var markerTerms = map[Category][]string{
	Environmental: {"carbon", "renewable", "emissions", "climate", "energy"},
	Social:        {"diversity", "inclusion", "health", "safety", "training"},
	Governance:    {"board", "compliance", "audit", "transparency", "ethics"},
}

// ErrInvalidInput 输入文本不是合法的UTF-8
var ErrInvalidInput = errors.New("invalid input: text is not valid UTF-8")

// Report 评分结果
type Report struct {
	Scores  map[Category]float64        `json:"scores"`  // 百分比，保留两位小数
	Counts  map[Category]int            `json:"counts"`  // 每个维度的原始命中次数
	Matches map[Category]map[string]int `json:"matches"` // 每个标记词的命中次数
	Total   int                         `json:"total"`   // 所有维度命中总数
}

// Terms 返回某个维度的标记词副本
func Terms(c Category) []string {
	return append([]string(nil), markerTerms[c]...)
}

// Score 按出现次数加权并归一化到100
// 没有任何命中时按等权处理，得到 33.33/33.33/33.34
func Score(text string) (Report, error) {
	if !utf8.ValidString(text) {
		return Report{}, ErrInvalidInput
	}

	lower := strings.ToLower(text)
	report := Report{
		Scores:  make(map[Category]float64, len(Categories)),
		Counts:  make(map[Category]int, len(Categories)),
		Matches: make(map[Category]map[string]int, len(Categories)),
	}

	for _, c := range Categories {
		hits := make(map[string]int, len(markerTerms[c]))
		for _, term := range markerTerms[c] {
			n := countOverlapping(lower, term)
			hits[term] = n
			report.Counts[c] += n
		}
		report.Matches[c] = hits
		report.Total += report.Counts[c]
	}

	weights := make([]float64, len(Categories))
	for i, c := range Categories {
		weights[i] = float64(report.Counts[c])
	}
	if report.Total == 0 {
		for i := range weights {
			weights[i] = 1
		}
	}

	for i, v := range normalize(weights) {
		report.Scores[Categories[i]] = v
	}
	return report, nil
}

// Coverage 按标记词出现与否计算覆盖率，每个维度独立取值 0..100
// 与 Score 是两种不同的口径，结果不保证加总为100
func Coverage(text string) (map[Category]float64, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidInput
	}

	lower := strings.ToLower(text)
	out := make(map[Category]float64, len(Categories))
	for _, c := range Categories {
		present := 0
		for _, term := range markerTerms[c] {
			if strings.Contains(lower, term) {
				present++
			}
		}
		out[c] = round2(100 * float64(present) / float64(len(markerTerms[c])))
	}
	return out, nil
}

// normalize 归一化到100并四舍五入到两位小数
// 舍入残差加到权重最大的维度上（并列时取靠后的维度）
func normalize(weights []float64) []float64 {
	var sum float64
	for _, w := range weights {
		sum += w
	}

	out := make([]float64, len(weights))
	largest := 0
	var rounded float64
	for i, w := range weights {
		out[i] = round2(100 * w / sum)
		rounded += out[i]
		if w >= weights[largest] {
			largest = i
		}
	}
	out[largest] = round2(out[largest] + (100 - rounded))
	return out
}

// countOverlapping 统计子串出现次数，允许重叠
func countOverlapping(s, sub string) int {
	if sub == "" {
		return 0
	}
	count := 0
	for {
		i := strings.Index(s, sub)
		if i < 0 {
			return count
		}
		count++
		_, size := utf8.DecodeRuneInString(s[i:])
		s = s[i+size:]
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
