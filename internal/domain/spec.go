package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// ClauseType 条款类型
type ClauseType string

const (
	ClauseMandatory ClauseType = "mandatory"
	ClauseOptional  ClauseType = "optional"
)

// Valid 判断条款类型是否合法
func (t ClauseType) Valid() bool {
	return t == ClauseMandatory || t == ClauseOptional
}

// AlternativeSpec 条款的备选变体：命中选择谓词时改用该变体的生成指令
type AlternativeSpec struct {
	When         Predicate `json:"when"`
	SystemPrompt string    `json:"system_prompt"`
}

// Validate 校验备选变体配置
func (a AlternativeSpec) Validate() error {
	if err := a.When.Validate(); err != nil {
		return fmt.Errorf("invalid selector predicate: %w", err)
	}
	if strings.TrimSpace(a.SystemPrompt) == "" {
		return fmt.Errorf("alternative system_prompt is required")
	}
	return nil
}

// ConditionType 条件类型，沿用既有的校验规则分类
type ConditionType string

const (
	CondForbiddenWords  ConditionType = "contains_forbidden_words"
	CondMinLength       ConditionType = "min_length"
	CondMaxLength       ConditionType = "max_length"
	CondRequiredPattern ConditionType = "required_pattern"
	CondMustContain     ConditionType = "must_contain"
	CondPredicate       ConditionType = "predicate"
)

// ConditionSpec 条件匹配配置：针对生成文本或上下文的一条判断
// 告警条件与建议规则共用同一套匹配逻辑
type ConditionSpec struct {
	Type    ConditionType `json:"type"`
	Words   []string      `json:"words,omitempty"`   // contains_forbidden_words
	Length  int           `json:"length,omitempty"`  // min_length / max_length
	Pattern string        `json:"pattern,omitempty"` // required_pattern
	Terms   []string      `json:"terms,omitempty"`   // must_contain
	When    *Predicate    `json:"when,omitempty"`    // predicate
}

// Validate 模板写入/加载时校验，确保错误配置不会拖到遍历中途才暴露
func (c ConditionSpec) Validate() error {
	switch c.Type {
	case CondForbiddenWords:
		if len(c.Words) == 0 {
			return fmt.Errorf("condition %q requires words", c.Type)
		}
	case CondMinLength, CondMaxLength:
		if c.Length <= 0 {
			return fmt.Errorf("condition %q requires a positive length", c.Type)
		}
	case CondRequiredPattern:
		if c.Pattern == "" {
			return fmt.Errorf("condition %q requires a pattern", c.Type)
		}
		if _, err := regexp.Compile("(?i)" + c.Pattern); err != nil {
			return fmt.Errorf("condition %q has invalid pattern: %w", c.Type, err)
		}
	case CondMustContain:
		if len(c.Terms) == 0 {
			return fmt.Errorf("condition %q requires terms", c.Type)
		}
	case CondPredicate:
		if c.When == nil {
			return fmt.Errorf("condition %q requires a when predicate", c.Type)
		}
		if err := c.When.Validate(); err != nil {
			return fmt.Errorf("condition %q: %w", c.Type, err)
		}
	default:
		return fmt.Errorf("unknown condition type: %q", c.Type)
	}
	return nil
}

// Match 判断条件是否命中
// 纯函数：相同的 (text, ctx) 输入必须产生相同结果
func (c ConditionSpec) Match(text string, ctx *Context) (bool, error) {
	lower := strings.ToLower(text)

	switch c.Type {
	case CondForbiddenWords:
		for _, w := range c.Words {
			if strings.Contains(lower, strings.ToLower(w)) {
				return true, nil
			}
		}
		return false, nil
	case CondMinLength:
		return len(strings.TrimSpace(text)) < c.Length, nil
	case CondMaxLength:
		return len(strings.TrimSpace(text)) > c.Length, nil
	case CondRequiredPattern:
		re, err := regexp.Compile("(?i)" + c.Pattern)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", c.Pattern, err)
		}
		return !re.MatchString(text), nil
	case CondMustContain:
		for _, term := range c.Terms {
			if !strings.Contains(lower, strings.ToLower(term)) {
				return true, nil
			}
		}
		return false, nil
	case CondPredicate:
		if c.When == nil {
			return false, fmt.Errorf("predicate condition missing when")
		}
		return c.When.Evaluate(ctx)
	}

	return false, fmt.Errorf("unknown condition type: %q", c.Type)
}

// AlertCondition 告警条件：命中时产生一条结构化风险告警
type AlertCondition struct {
	ConditionSpec
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Validate 校验告警条件
func (c AlertCondition) Validate() error {
	if err := c.ConditionSpec.Validate(); err != nil {
		return err
	}
	if !c.Severity.Valid() {
		return fmt.Errorf("invalid alert severity: %q", c.Severity)
	}
	if strings.TrimSpace(c.Message) == "" {
		return fmt.Errorf("alert message is required")
	}
	return nil
}

// SuggestionRule 建议规则：命中时产生一条建议文本，纯咨询性质
type SuggestionRule struct {
	ConditionSpec
	Text string `json:"text"`
}

// Validate 校验建议规则
func (r SuggestionRule) Validate() error {
	if err := r.ConditionSpec.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("suggestion text is required")
	}
	return nil
}

// ValidateClauseSpec 校验条款的全部配置映射
// 模板写入时调用，保证遍历期不会遇到无法解析的配置
func ValidateClauseSpec(
	clauseType ClauseType,
	includeWhen *Predicate,
	alternatives map[string]AlternativeSpec,
	alertConditions map[string]AlertCondition,
	suggestions map[string]SuggestionRule,
) error {
	if !clauseType.Valid() {
		return fmt.Errorf("unknown clause type: %q", clauseType)
	}
	if clauseType == ClauseOptional && includeWhen == nil {
		return fmt.Errorf("optional clause requires an include_when predicate")
	}
	if includeWhen != nil {
		if err := includeWhen.Validate(); err != nil {
			return fmt.Errorf("invalid include_when: %w", err)
		}
	}
	for _, key := range SortedKeys(alternatives) {
		if err := alternatives[key].Validate(); err != nil {
			return fmt.Errorf("alternative %q: %w", key, err)
		}
	}
	for _, key := range SortedKeys(alertConditions) {
		if err := alertConditions[key].Validate(); err != nil {
			return fmt.Errorf("alert condition %q: %w", key, err)
		}
	}
	for _, key := range SortedKeys(suggestions) {
		if err := suggestions[key].Validate(); err != nil {
			return fmt.Errorf("suggestion %q: %w", key, err)
		}
	}
	return nil
}
