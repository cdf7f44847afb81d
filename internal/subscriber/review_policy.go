package subscriber

import (
	"context"
	"errors"

	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/eventbus"
	"github.com/clauseforge/backend/internal/model"
	"github.com/clauseforge/backend/internal/repository"
)

// ReviewPolicy 审查策略订阅器
// 引擎本身从不进入 needs_review，该状态完全由外部策略驱动：
// 条款提交后若告警最高级别达到阈值，把文档转入 needs_review 等待人工确认
type ReviewPolicy struct {
	docRepo   repository.DocumentRepository
	threshold domain.Severity
}

// NewReviewPolicy 创建审查策略订阅器
// threshold 不合法时回退到 critical
func NewReviewPolicy(docRepo repository.DocumentRepository, threshold domain.Severity) *ReviewPolicy {
	if !threshold.Valid() {
		threshold = domain.SeverityCritical
	}
	return &ReviewPolicy{docRepo: docRepo, threshold: threshold}
}

// Register 订阅条款推进事件，返回取消订阅函数
func (p *ReviewPolicy) Register(bus *eventbus.DocumentEventBus) func() {
	return bus.Subscribe(eventbus.DocumentEventClauseAdvanced, p.onClauseAdvanced)
}

// onClauseAdvanced 处理条款推进事件
// 状态条件更新：文档已不在 in_progress 时放弃，不覆盖别的迁移
func (p *ReviewPolicy) onClauseAdvanced(ctx context.Context, event eventbus.DocumentEvent) error {
	if event.AlertCount == 0 || !event.MaxSeverity.AtLeast(p.threshold) {
		return nil
	}

	err := p.docRepo.UpdateStatus(event.DocumentID, model.DocStatusInProgress, model.DocStatusNeedsReview)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			klog.V(6).Infof("审查策略放弃迁移，文档已不在 in_progress: docID=%d", event.DocumentID)
			return nil
		}
		return err
	}

	klog.Infof("文档触发人工审查: docID=%d, order=%d, maxSeverity=%s",
		event.DocumentID, event.ClauseOrder, event.MaxSeverity)
	return nil
}
