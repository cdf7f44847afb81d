package resolver

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
)

// ResolvedClause 条款解析结果
type ResolvedClause struct {
	Prompt     string // 生效的生成指令
	VariantKey string // 命中的变体 key，默认变体为空
	IsIncluded bool   // 可选条款未纳入时为 false
}

// ResolutionError 条款解析失败：选择谓词引用了不存在的上下文字段等
// 属于永久性错误，需要修复模板配置
type ResolutionError struct {
	ClauseID    uint
	SectionName string
	Key         string // 出错的备选变体 key，纳入谓词出错时为空
	Err         error
}

func (e *ResolutionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("resolve clause %d (%s) alternative %q: %v",
			e.ClauseID, e.SectionName, e.Key, e.Err)
	}
	return fmt.Sprintf("resolve clause %d (%s): %v", e.ClauseID, e.SectionName, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver 条款解析器
// 决定可选条款是否纳入，以及备选变体的选择
type Resolver struct{}

// New 创建解析器实例
func New() *Resolver {
	return &Resolver{}
}

// Resolve 解析条款
// 可选条款先评估纳入谓词，未纳入直接返回 IsIncluded=false；
// 备选变体按 key 字典序逐个评估，取第一个命中者，保证结果可复现；
// 全部未命中时回退到条款自身的 system_prompt 作为默认变体。
// 一个条款在一次解析中至多命中一个变体。
func (r *Resolver) Resolve(clause *model.Clause, ctx *domain.Context) (*ResolvedClause, error) {
	if clause.Type == domain.ClauseOptional {
		pred := clause.IncludeWhen.Data()
		if pred == nil {
			return nil, &ResolutionError{
				ClauseID:    clause.ID,
				SectionName: clause.SectionName,
				Err:         fmt.Errorf("optional clause has no include_when predicate"),
			}
		}
		included, err := pred.Evaluate(ctx)
		if err != nil {
			return nil, &ResolutionError{
				ClauseID:    clause.ID,
				SectionName: clause.SectionName,
				Err:         err,
			}
		}
		if !included {
			klog.V(6).Infof("可选条款未纳入: clauseID=%d, section=%s", clause.ID, clause.SectionName)
			return &ResolvedClause{IsIncluded: false}, nil
		}
	}

	alternatives := clause.TypeAlternatives.Data()
	for _, key := range domain.SortedKeys(alternatives) {
		alt := alternatives[key]
		matched, err := alt.When.Evaluate(ctx)
		if err != nil {
			// 谓词失败必须上浮，不能伪装成"未命中"
			return nil, &ResolutionError{
				ClauseID:    clause.ID,
				SectionName: clause.SectionName,
				Key:         key,
				Err:         err,
			}
		}
		if matched {
			klog.V(6).Infof("条款变体命中: clauseID=%d, section=%s, variant=%s",
				clause.ID, clause.SectionName, key)
			return &ResolvedClause{
				Prompt:     alt.SystemPrompt,
				VariantKey: key,
				IsIncluded: true,
			}, nil
		}
	}

	return &ResolvedClause{
		Prompt:     clause.SystemPrompt,
		IsIncluded: true,
	}, nil
}
