package alerting

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
)

// Evaluator 告警评估器
// 对生成文本评估条款的全部告警条件，产出有序的结构化告警
type Evaluator struct{}

// New 创建评估器实例
func New() *Evaluator {
	return &Evaluator{}
}

// Evaluate 评估告警条件
// 各条件相互独立，按条件 key 字典序评估，相同输入必然产出相同的有序结果。
// 告警只是附加在条款记录上的元数据，本身不阻断生成或推进。
func (e *Evaluator) Evaluate(clause *model.Clause, generatedText string, ctx *domain.Context) ([]domain.Alert, error) {
	conditions := clause.AlertConditions.Data()
	if len(conditions) == 0 {
		return nil, nil
	}

	var alerts []domain.Alert
	for _, key := range domain.SortedKeys(conditions) {
		cond := conditions[key]
		matched, err := cond.Match(generatedText, ctx)
		if err != nil {
			return nil, fmt.Errorf("alert condition %q on clause %d: %w", key, clause.ID, err)
		}
		if matched {
			alerts = append(alerts, domain.Alert{
				Key:      key,
				Severity: cond.Severity,
				Message:  cond.Message,
			})
		}
	}

	if len(alerts) > 0 {
		klog.V(6).Infof("条款触发告警: clauseID=%d, section=%s, alerts=%d, maxSeverity=%s",
			clause.ID, clause.SectionName, len(alerts), domain.MaxSeverity(alerts))
	}
	return alerts, nil
}
