package suggesting

import (
	"fmt"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
)

// Engine 建议引擎
// 与告警评估器同构，但产出纯咨询性的起草建议，不影响状态与遍历。
// 二者刻意保持独立：告警是风险/合规信号，建议是文风/起草提示，
// 下游消费方可以只过滤其中一类。
type Engine struct{}

// New 创建建议引擎实例
func New() *Engine {
	return &Engine{}
}

// Evaluate 评估建议规则，按规则 key 字典序产出有序结果
func (e *Engine) Evaluate(clause *model.Clause, generatedText string, ctx *domain.Context) ([]domain.Suggestion, error) {
	rules := clause.Suggestions.Data()
	if len(rules) == 0 {
		return nil, nil
	}

	var suggestions []domain.Suggestion
	for _, key := range domain.SortedKeys(rules) {
		rule := rules[key]
		matched, err := rule.Match(generatedText, ctx)
		if err != nil {
			return nil, fmt.Errorf("suggestion rule %q on clause %d: %w", key, clause.ID, err)
		}
		if matched {
			suggestions = append(suggestions, domain.Suggestion{
				Key:  key,
				Text: rule.Text,
			})
		}
	}

	return suggestions, nil
}
