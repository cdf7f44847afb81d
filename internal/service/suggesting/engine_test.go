package suggesting

import (
	"testing"

	"gorm.io/datatypes"

	"github.com/clauseforge/backend/internal/domain"
	"github.com/clauseforge/backend/internal/model"
)

func TestEvaluateSuggestions(t *testing.T) {
	e := New()
	clause := &model.Clause{
		ID:          1,
		SectionName: "Confidentiality",
		Suggestions: datatypes.NewJSONType(map[string]domain.SuggestionRule{
			"b_add_exclusions": {
				ConditionSpec: domain.ConditionSpec{Type: domain.CondMustContain, Terms: []string{"exclusion"}},
				Text:          "建议显式列出标准排除项",
			},
			"a_too_short": {
				ConditionSpec: domain.ConditionSpec{Type: domain.CondMinLength, Length: 1000},
				Text:          "建议补充细节",
			},
		}),
	}

	suggestions, err := e.Evaluate(clause, "short text without the e-word", domain.NewContext(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
	}
	if suggestions[0].Key != "a_too_short" || suggestions[1].Key != "b_add_exclusions" {
		t.Fatalf("suggestions not in key order: %s, %s", suggestions[0].Key, suggestions[1].Key)
	}
}

func TestEvaluateNoRules(t *testing.T) {
	e := New()
	suggestions, err := e.Evaluate(&model.Clause{ID: 2}, "text", domain.NewContext(nil, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if suggestions != nil {
		t.Fatalf("expected no suggestions, got %v", suggestions)
	}
}
