package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// DocumentStatus 定义文档的所有可能状态
type DocumentStatus string

const (
	DocStatusInProgress  DocumentStatus = "in_progress"  // 正在逐条款推进（初始态）
	DocStatusCompleted   DocumentStatus = "completed"    // 全部条款处理完毕（终态）
	DocStatusFailed      DocumentStatus = "failed"       // 生成永久失败（终态）
	DocStatusNeedsReview DocumentStatus = "needs_review" // 高危告警待人工确认
	DocStatusPaused      DocumentStatus = "paused"       // 用户主动暂停
)

// DocumentTransition 定义文档状态迁移
type DocumentTransition struct {
	From DocumentStatus
	To   DocumentStatus
}

// DocumentStateMachine 文档状态机
type DocumentStateMachine struct {
	// 定义所有合法的状态迁移
	allowedTransitions map[DocumentTransition]bool
}

// NewDocumentStateMachine 创建新的文档状态机
func NewDocumentStateMachine() *DocumentStateMachine {
	sm := &DocumentStateMachine{
		allowedTransitions: make(map[DocumentTransition]bool),
	}

	// 定义合法的状态迁移路径
	// in_progress -> completed/failed/needs_review/paused
	// needs_review -> in_progress（人工确认后恢复）
	// paused -> in_progress（恢复推进）
	// completed/failed 为终态，不再迁移
	transitions := []DocumentTransition{
		{DocStatusInProgress, DocStatusCompleted},
		{DocStatusInProgress, DocStatusFailed},
		{DocStatusInProgress, DocStatusNeedsReview},
		{DocStatusInProgress, DocStatusPaused},

		{DocStatusNeedsReview, DocStatusInProgress},
		{DocStatusPaused, DocStatusInProgress},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *DocumentStateMachine) CanTransition(from, to DocumentStatus) bool {
	if from == to {
		return false // 不允许状态不变
	}
	return sm.allowedTransitions[DocumentTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *DocumentStateMachine) ValidateTransition(from, to DocumentStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *DocumentStateMachine) Transition(from, to DocumentStatus, docID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("文档状态迁移被拒绝: docID=%d, %s -> %s, error=%v",
			docID, from, to, err)
		return err
	}

	klog.V(6).Infof("文档状态迁移成功: docID=%d, %s -> %s", docID, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid document state transition: %s -> %s", e.From, e.To)
}

// IsTerminal 判断状态是否为终止态（不能再迁移）
func IsTerminal(status DocumentStatus) bool {
	return status == DocStatusCompleted || status == DocStatusFailed
}

// CanAdvance 判断文档是否可以执行推进操作
// 只有 in_progress 可推进；needs_review/paused 必须先恢复
func CanAdvance(status DocumentStatus) bool {
	return status == DocStatusInProgress
}

// CanResume 判断文档是否可以恢复为 in_progress
func CanResume(status DocumentStatus) bool {
	return status == DocStatusNeedsReview || status == DocStatusPaused
}
