package domain

import (
	"fmt"
	"strings"
)

// PredicateOp 谓词运算符
type PredicateOp string

const (
	OpEquals    PredicateOp = "equals"
	OpNotEquals PredicateOp = "not_equals"
	OpExists    PredicateOp = "exists"
	OpTruthy    PredicateOp = "truthy"
	OpContains  PredicateOp = "contains"
	OpGreater   PredicateOp = "greater_than"
	OpLess      PredicateOp = "less_than"
	OpIn        PredicateOp = "in"
)

var validOps = map[PredicateOp]bool{
	OpEquals:    true,
	OpNotEquals: true,
	OpExists:    true,
	OpTruthy:    true,
	OpContains:  true,
	OpGreater:   true,
	OpLess:      true,
	OpIn:        true,
}

// opNeedsValue 需要比较值的运算符
var opNeedsValue = map[PredicateOp]bool{
	OpEquals:    true,
	OpNotEquals: true,
	OpContains:  true,
	OpGreater:   true,
	OpLess:      true,
	OpIn:        true,
}

// UnknownFieldError 谓词引用了上下文中不存在的字段
// 必须显式上报，不能当作"未命中"吞掉
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("predicate references unknown context field: %s", e.Field)
}

// Predicate 上下文谓词：对单个字段做一次比较
type Predicate struct {
	Field string      `json:"field"`
	Op    PredicateOp `json:"op"`
	Value any         `json:"value,omitempty"`
}

// Validate 模板写入/加载时校验谓词，错误的配置必须在入库前失败
func (p Predicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("predicate field is required")
	}
	if !validOps[p.Op] {
		return fmt.Errorf("unknown predicate op: %q", p.Op)
	}
	if opNeedsValue[p.Op] && p.Value == nil {
		return fmt.Errorf("predicate op %q requires a value", p.Op)
	}
	if p.Op == OpIn {
		if _, ok := p.Value.([]any); !ok {
			if _, ok := p.Value.([]string); !ok {
				return fmt.Errorf("predicate op %q requires a list value", OpIn)
			}
		}
	}
	return nil
}

// Evaluate 对上下文求值
// 字段缺失时返回 *UnknownFieldError（exists 运算符除外）
func (p Predicate) Evaluate(ctx *Context) (bool, error) {
	v, found := ctx.Lookup(p.Field)

	if p.Op == OpExists {
		return found, nil
	}
	if !found {
		return false, &UnknownFieldError{Field: p.Field}
	}

	switch p.Op {
	case OpTruthy:
		return isTruthy(v), nil
	case OpEquals:
		return looseEqual(v, p.Value), nil
	case OpNotEquals:
		return !looseEqual(v, p.Value), nil
	case OpContains:
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		needle := fmt.Sprintf("%v", p.Value)
		return strings.Contains(strings.ToLower(s), strings.ToLower(needle)), nil
	case OpGreater:
		a, okA := toFloat(v)
		b, okB := toFloat(p.Value)
		return okA && okB && a > b, nil
	case OpLess:
		a, okA := toFloat(v)
		b, okB := toFloat(p.Value)
		return okA && okB && a < b, nil
	case OpIn:
		for _, item := range toList(p.Value) {
			if looseEqual(v, item) {
				return true, nil
			}
		}
		return false, nil
	}

	return false, fmt.Errorf("unknown predicate op: %q", p.Op)
}

// isTruthy 非空字符串、true、非零数值视为真
func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case nil:
		return false
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

// looseEqual 宽松相等：数值统一转 float64 比较，其余按字符串形式比较
// JSON 反序列化后的数值一律是 float64，存储前后的类型差异不应影响结果
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	}
	return 0, false
}

func toList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}
