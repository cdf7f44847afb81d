package session

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/eventbus"
	"github.com/clauseforge/backend/internal/model"
	"github.com/clauseforge/backend/internal/repository"
	"github.com/clauseforge/backend/internal/service/alerting"
	"github.com/clauseforge/backend/internal/service/generator"
	"github.com/clauseforge/backend/internal/service/resolver"
	"github.com/clauseforge/backend/internal/service/statemachine"
	"github.com/clauseforge/backend/internal/service/suggesting"
)

// AdvanceResult 单次推进的结果
// Completed=true 时本次没有处理新条款，文档已转入 completed
type AdvanceResult struct {
	Document    *model.Document
	ClauseOrder int
	SectionName string
	VariantKey  string
	Skipped     bool
	Completed   bool
	Alerts      []domain.Alert
	Suggestions []domain.Suggestion
}

// Session 文档会话服务
// 负责文档的逐条款推进：定位条款 -> 解析变体 -> 生成内容 -> 评估告警建议 ->
// 原子提交。每次推进恰好处理一个条款，提交成功后才发布事件。
type Session struct {
	docRepo    repository.DocumentRepository
	clauseRepo repository.ClauseRepository
	resolver   *resolver.Resolver
	alerting   *alerting.Evaluator
	suggesting *suggesting.Engine
	generator  generator.ContentGenerator
	sm         *statemachine.DocumentStateMachine
	bus        *eventbus.DocumentEventBus
	locks      *docLocks
}

// New 创建文档会话服务
func New(
	docRepo repository.DocumentRepository,
	clauseRepo repository.ClauseRepository,
	gen generator.ContentGenerator,
	bus *eventbus.DocumentEventBus,
) *Session {
	return &Session{
		docRepo:    docRepo,
		clauseRepo: clauseRepo,
		resolver:   resolver.New(),
		alerting:   alerting.New(),
		suggesting: suggesting.New(),
		generator:  gen,
		sm:         statemachine.NewDocumentStateMachine(),
		bus:        bus,
		locks:      newDocLocks(),
	}
}

// Advance 推进文档一个条款
// 瞬时生成失败直接返回错误且文档状态不变，调用方可原样重试；
// 永久失败（解析失败/永久生成失败/评估失败）把文档转入 failed；
// 乐观并发冲突返回 ErrConcurrencyConflict，整次推进无任何落库效果。
func (s *Session) Advance(ctx context.Context, docID uint) (*AdvanceResult, error) {
	if !s.locks.TryLock(docID) {
		return nil, &InvalidStateError{DocumentID: docID, Status: "busy", Op: "advance"}
	}
	defer s.locks.Unlock(docID)

	doc, err := s.docRepo.Get(docID)
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", docID, err)
	}
	if !statemachine.CanAdvance(statemachine.DocumentStatus(doc.Status)) {
		return nil, &InvalidStateError{DocumentID: docID, Status: doc.Status, Op: "advance"}
	}
	expectedVersion := doc.Version

	// 允许 order_num 留空隙：定位大于等于当前位置的第一个条款
	clause, err := s.clauseRepo.NextAfter(doc.DocTemplateID, doc.CurrentClauseOrder-1)
	if errors.Is(err, repository.ErrNotFound) {
		return s.complete(ctx, doc, expectedVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("locate clause for document %d: %w", docID, err)
	}

	docCtx := doc.BuildContext()

	resolved, err := s.resolver.Resolve(clause, docCtx)
	if err != nil {
		// 解析失败属于模板配置问题，永久失败
		return nil, s.fail(ctx, doc, expectedVersion, err)
	}

	record := domain.ClauseRecord{
		SectionName: clause.SectionName,
		GeneratedAt: time.Now(),
	}

	if !resolved.IsIncluded {
		record.Skipped = true
		return s.commit(ctx, doc, expectedVersion, clause, record, nil, nil)
	}

	// 生成在提交之前执行：生成失败时文档不留半成品状态
	text, err := s.generator.Generate(ctx, resolved.Prompt, docCtx)
	if err != nil {
		if generator.IsTransient(err) {
			klog.V(6).Infof("瞬时生成失败，文档状态不变: docID=%d, order=%d, err=%v",
				docID, clause.OrderNum, err)
			return nil, err
		}
		return nil, s.fail(ctx, doc, expectedVersion, err)
	}

	alerts, err := s.alerting.Evaluate(clause, text, docCtx)
	if err != nil {
		return nil, s.fail(ctx, doc, expectedVersion, err)
	}
	suggestions, err := s.suggesting.Evaluate(clause, text, docCtx)
	if err != nil {
		return nil, s.fail(ctx, doc, expectedVersion, err)
	}

	record.VariantKey = resolved.VariantKey
	record.Text = text
	record.Alerts = alerts
	record.Suggestions = suggestions
	return s.commit(ctx, doc, expectedVersion, clause, record, alerts, suggestions)
}

// AdvanceToCompletion 连续推进文档直到终态或不可推进
// 瞬时失败/状态变化/并发冲突都会中断循环并把错误交给调用方
func (s *Session) AdvanceToCompletion(ctx context.Context, docID uint) (*model.Document, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.Advance(ctx, docID)
		if err != nil {
			return nil, err
		}
		if result.Completed || result.Document.IsTerminal() {
			return result.Document, nil
		}
	}
}

// Pause 暂停推进中的文档
func (s *Session) Pause(ctx context.Context, docID uint) (*model.Document, error) {
	return s.setStatus(docID, model.DocStatusInProgress, model.DocStatusPaused, "pause")
}

// Resume 把 paused 或 needs_review 文档恢复为 in_progress
func (s *Session) Resume(ctx context.Context, docID uint) (*model.Document, error) {
	doc, err := s.docRepo.Get(docID)
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", docID, err)
	}
	if !statemachine.CanResume(statemachine.DocumentStatus(doc.Status)) {
		return nil, &InvalidStateError{DocumentID: docID, Status: doc.Status, Op: "resume"}
	}
	return s.setStatus(docID, doc.Status, model.DocStatusInProgress, "resume")
}

// setStatus 经状态机校验后做条件状态更新
func (s *Session) setStatus(docID uint, from, to, op string) (*model.Document, error) {
	if err := s.sm.Transition(statemachine.DocumentStatus(from), statemachine.DocumentStatus(to), docID); err != nil {
		return nil, &InvalidStateError{DocumentID: docID, Status: from, Op: op}
	}
	if err := s.docRepo.UpdateStatus(docID, from, to); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, &InvalidStateError{DocumentID: docID, Status: from, Op: op}
		}
		return nil, err
	}
	return s.docRepo.Get(docID)
}

// complete 没有剩余条款，文档转入 completed
func (s *Session) complete(ctx context.Context, doc *model.Document, expectedVersion int) (*AdvanceResult, error) {
	if err := s.sm.Transition(statemachine.DocStatusInProgress, statemachine.DocStatusCompleted, doc.ID); err != nil {
		return nil, err
	}
	doc.Status = model.DocStatusCompleted
	if err := s.docRepo.SaveWithVersion(doc, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("complete document %d: %w", doc.ID, err)
	}

	klog.V(6).Infof("文档全部条款处理完毕: docID=%d", doc.ID)
	s.publish(ctx, eventbus.DocumentEvent{
		Type:       eventbus.DocumentEventCompleted,
		DocumentID: doc.ID,
	})
	return &AdvanceResult{Document: doc, Completed: true}, nil
}

// fail 永久失败，文档转入 failed 并记录原因
// 返回值是原始失败错误，落库失败时以落库错误为准
func (s *Session) fail(ctx context.Context, doc *model.Document, expectedVersion int, cause error) error {
	if err := s.sm.Transition(statemachine.DocumentStatus(doc.Status), statemachine.DocStatusFailed, doc.ID); err != nil {
		return err
	}
	doc.Status = model.DocStatusFailed
	doc.ErrorMsg = truncate(cause.Error(), 2000)
	if err := s.docRepo.SaveWithVersion(doc, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return ErrConcurrencyConflict
		}
		return fmt.Errorf("mark document %d failed: %w", doc.ID, err)
	}

	klog.Warningf("文档推进永久失败: docID=%d, err=%v", doc.ID, cause)
	s.publish(ctx, eventbus.DocumentEvent{
		Type:       eventbus.DocumentEventFailed,
		DocumentID: doc.ID,
	})
	return cause
}

// commit 原子提交条款记录并推进位置
// 内容写入与位置推进必须同一次落库，失败时二者都不生效
func (s *Session) commit(ctx context.Context, doc *model.Document, expectedVersion int,
	clause *model.Clause, record domain.ClauseRecord,
	alerts []domain.Alert, suggestions []domain.Suggestion) (*AdvanceResult, error) {

	content := doc.Content.Data()
	if content == nil {
		content = domain.DocumentContent{}
	}
	content.Set(clause.OrderNum, record)
	doc.Content = datatypes.NewJSONType(content)
	doc.CurrentClauseOrder = clause.OrderNum + 1

	if err := s.docRepo.SaveWithVersion(doc, expectedVersion); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("commit clause %d on document %d: %w", clause.OrderNum, doc.ID, err)
	}

	klog.V(6).Infof("条款提交完成: docID=%d, order=%d, section=%s, skipped=%v, alerts=%d",
		doc.ID, clause.OrderNum, clause.SectionName, record.Skipped, len(alerts))

	s.publish(ctx, eventbus.DocumentEvent{
		Type:        eventbus.DocumentEventClauseAdvanced,
		DocumentID:  doc.ID,
		ClauseOrder: clause.OrderNum,
		SectionName: clause.SectionName,
		VariantKey:  record.VariantKey,
		Skipped:     record.Skipped,
		AlertCount:  len(alerts),
		MaxSeverity: domain.MaxSeverity(alerts),
	})

	return &AdvanceResult{
		Document:    doc,
		ClauseOrder: clause.OrderNum,
		SectionName: clause.SectionName,
		VariantKey:  record.VariantKey,
		Skipped:     record.Skipped,
		Alerts:      alerts,
		Suggestions: suggestions,
	}, nil
}

// publish 事件发布失败只记日志，不影响已提交的推进结果
func (s *Session) publish(ctx context.Context, event eventbus.DocumentEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event.Type, event); err != nil {
		klog.Warningf("文档事件处理出错: docID=%d, type=%s, err=%v",
			event.DocumentID, event.Type, err)
	}
}

// truncate 按字节上限截断，回退到完整 rune 边界，避免截出非法 UTF-8
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
