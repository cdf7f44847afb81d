package model

import (
	"time"

	"gorm.io/datatypes"

	"github.com/clauseforge/backend/internal/domain"
)

// Clause 模板条款表
// order_num 在模板内唯一，严格定义遍历顺序；允许留空隙，禁止重复
// 配置列均为强类型 JSON，写入时校验，遍历期不再解析失败
type Clause struct {
	ID               uint                                                  `json:"id" gorm:"primaryKey"`
	DocTemplateID    uint                                                  `json:"doc_template_id" gorm:"not null;uniqueIndex:idx_clauses_template_order,priority:1"`
	OrderNum         int                                                   `json:"order_num" gorm:"not null;uniqueIndex:idx_clauses_template_order,priority:2"`
	SectionName      string                                                `json:"section_name" gorm:"size:255;not null"`
	Type             domain.ClauseType                                     `json:"type" gorm:"size:20;not null;default:mandatory"`
	IncludeWhen      datatypes.JSONType[*domain.Predicate]                 `json:"include_when"`      // 可选条款的纳入谓词
	TypeAlternatives datatypes.JSONType[map[string]domain.AlternativeSpec] `json:"type_alternatives"` // 备选变体：key -> 变体配置
	AlertConditions  datatypes.JSONType[map[string]domain.AlertCondition]  `json:"alert_conditions"`  // 告警条件：key -> 条件配置
	Suggestions      datatypes.JSONType[map[string]domain.SuggestionRule]  `json:"suggestions"`       // 建议规则：key -> 规则配置
	SystemPrompt     string                                                `json:"system_prompt" gorm:"type:text"`
	CreatedAt        time.Time                                             `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time                                             `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Clause) TableName() string {
	return "clauses"
}

// ValidateSpec 校验条款的全部 JSON 配置
func (c *Clause) ValidateSpec() error {
	return domain.ValidateClauseSpec(
		c.Type,
		c.IncludeWhen.Data(),
		c.TypeAlternatives.Data(),
		c.AlertConditions.Data(),
		c.Suggestions.Data(),
	)
}
