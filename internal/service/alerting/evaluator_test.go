package alerting

import (
	"testing"

	"gorm.io/datatypes"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
)

func TestEvaluateOrderedAndRepeatable(t *testing.T) {
	e := New()
	clause := &model.Clause{
		ID:          1,
		SectionName: "Confidentiality",
		AlertConditions: datatypes.NewJSONType(map[string]domain.AlertCondition{
			"z_forbidden": {
				ConditionSpec: domain.ConditionSpec{Type: domain.CondForbiddenWords, Words: []string{"perpetual"}},
				Severity:      domain.SeverityCritical,
				Message:       "no perpetual terms",
			},
			"a_too_short": {
				ConditionSpec: domain.ConditionSpec{Type: domain.CondMinLength, Length: 1000},
				Severity:      domain.SeverityInfo,
				Message:       "clause too short",
			},
			"m_no_hit": {
				ConditionSpec: domain.ConditionSpec{Type: domain.CondForbiddenWords, Words: []string{"absent"}},
				Severity:      domain.SeverityWarning,
				Message:       "never fires",
			},
		}),
	}
	text := "a perpetual confidentiality obligation"
	ctx := domain.NewContext(nil, nil)

	first, err := e.Evaluate(clause, text, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(first))
	}
	// 按条件 key 字典序
	if first[0].Key != "a_too_short" || first[1].Key != "z_forbidden" {
		t.Fatalf("alerts not in key order: %s, %s", first[0].Key, first[1].Key)
	}
	if domain.MaxSeverity(first) != domain.SeverityCritical {
		t.Fatalf("unexpected max severity: %s", domain.MaxSeverity(first))
	}

	// 重复评估不叠加
	again, err := e.Evaluate(clause, text, ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != len(first) {
		t.Fatalf("repeated evaluation changed alert count: %d vs %d", len(again), len(first))
	}
}

func TestEvaluateNoConditions(t *testing.T) {
	e := New()
	alerts, err := e.Evaluate(&model.Clause{ID: 2}, "text", domain.NewContext(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alerts != nil {
		t.Fatalf("expected no alerts, got %v", alerts)
	}
}

// 条件评估失败必须上浮
func TestEvaluateErrorSurfaces(t *testing.T) {
	e := New()
	clause := &model.Clause{
		ID: 3,
		AlertConditions: datatypes.NewJSONType(map[string]domain.AlertCondition{
			"bad_predicate": {
				ConditionSpec: domain.ConditionSpec{
					Type: domain.CondPredicate,
					When: &domain.Predicate{Field: "missing", Op: domain.OpTruthy},
				},
				Severity: domain.SeverityWarning,
				Message:  "x",
			},
		}),
	}
	if _, err := e.Evaluate(clause, "text", domain.NewContext(nil, nil)); err == nil {
		t.Fatalf("expected evaluation error")
	}
}
