package service

import (
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"k8s.io/klog/v2"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
	"github.com/clauseforge/backend/internal/repository"
)

// InitSystemTemplates 初始化系统预置模板
// 按名称幂等：已存在则跳过，不覆盖用户的后续修改
func InitSystemTemplates(tplRepo repository.TemplateRepository) error {
	for _, tpl := range systemTemplates() {
		_, err := tplRepo.GetByName(tpl.Name)
		if err == nil {
			klog.V(6).Infof("系统模板已存在，跳过: %s", tpl.Name)
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check system template %q: %w", tpl.Name, err)
		}

		for i := range tpl.Clauses {
			if specErr := tpl.Clauses[i].ValidateSpec(); specErr != nil {
				return fmt.Errorf("system template %q clause %d: %w", tpl.Name, i, specErr)
			}
		}
		if err := tplRepo.Create(tpl); err != nil {
			return fmt.Errorf("failed to create system template %q: %w", tpl.Name, err)
		}
		klog.Infof("系统模板已创建: %s, clauses=%d", tpl.Name, len(tpl.Clauses))
	}
	return nil
}

// systemTemplates 预置模板定义
func systemTemplates() []*model.DocTemplate {
	return []*model.DocTemplate{mutualNDATemplate()}
}

// mutualNDATemplate 双向保密协议模板
// 三个条款：引言（必选）、保密义务（可选，由 has_nda_flag 决定）、签署（必选）
func mutualNDATemplate() *model.DocTemplate {
	return &model.DocTemplate{
		Name:        "Mutual NDA",
		Description: "双向保密协议：引言、保密义务与签署条款，保密义务按参数决定是否纳入",
		IsSystem:    true,
		Clauses: []model.Clause{
			{
				OrderNum:    1,
				SectionName: "Introduction",
				Type:        domain.ClauseMandatory,
				SystemPrompt: "You are drafting the introduction clause of a mutual non-disclosure " +
					"agreement. Identify both parties by the names provided in the context and state " +
					"the effective date and purpose of the agreement in formal legal English.",
				TypeAlternatives: datatypes.NewJSONType(map[string]domain.AlternativeSpec{
					"short_form": {
						When: domain.Predicate{Field: "style", Op: domain.OpEquals, Value: "short"},
						SystemPrompt: "Draft a concise one-paragraph introduction for a mutual NDA, " +
							"naming both parties and the effective date.",
					},
				}),
				AlertConditions: datatypes.NewJSONType(map[string]domain.AlertCondition{
					"missing_parties": {
						ConditionSpec: domain.ConditionSpec{
							Type:    domain.CondRequiredPattern,
							Pattern: `party|parties`,
						},
						Severity: domain.SeverityWarning,
						Message:  "引言条款未提及协议双方",
					},
				}),
			},
			{
				OrderNum:    2,
				SectionName: "Confidentiality Obligations",
				Type:        domain.ClauseOptional,
				IncludeWhen: datatypes.NewJSONType(&domain.Predicate{
					Field: "has_nda_flag",
					Op:    domain.OpTruthy,
				}),
				SystemPrompt: "Draft the confidentiality obligations clause of a mutual NDA. Define " +
					"confidential information, the obligations of the receiving party, and the " +
					"standard exclusions (public knowledge, prior possession, independent development).",
				AlertConditions: datatypes.NewJSONType(map[string]domain.AlertCondition{
					"unlimited_term": {
						ConditionSpec: domain.ConditionSpec{
							Type:  domain.CondForbiddenWords,
							Words: []string{"in perpetuity", "perpetual", "indefinitely"},
						},
						Severity: domain.SeverityCritical,
						Message:  "保密义务不应约定无限期",
					},
					"too_short": {
						ConditionSpec: domain.ConditionSpec{
							Type:   domain.CondMinLength,
							Length: 200,
						},
						Severity: domain.SeverityInfo,
						Message:  "保密义务条款篇幅过短，可能遗漏标准排除项",
					},
				}),
				Suggestions: datatypes.NewJSONType(map[string]domain.SuggestionRule{
					"add_exclusions": {
						ConditionSpec: domain.ConditionSpec{
							Type:  domain.CondMustContain,
							Terms: []string{"exclusion"},
						},
						Text: "建议显式列出保密信息的标准排除项",
					},
				}),
			},
			{
				OrderNum:    3,
				SectionName: "Signatures",
				Type:        domain.ClauseMandatory,
				SystemPrompt: "Draft the signature block clause of a mutual NDA with placeholders " +
					"for both parties' authorized signatories, printed names, titles and dates.",
				AlertConditions: datatypes.NewJSONType(map[string]domain.AlertCondition{
					"missing_signature_lines": {
						ConditionSpec: domain.ConditionSpec{
							Type:    domain.CondRequiredPattern,
							Pattern: `signature|signed`,
						},
						Severity: domain.SeverityWarning,
						Message:  "签署条款缺少签名位",
					},
				}),
			},
		},
	}
}
