package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

// ValidationResult reports the outcome of validating a rule configuration.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Evaluate decides whether a question governed by rule is visible given the
// answers collected so far. A nil rule or an empty condition list means the
// question is always visible. A condition whose referenced answer is absent
// or empty is false regardless of operator.
func Evaluate(rule *models.ConditionalRule, answers map[string]any) bool {
	if rule == nil || len(rule.Conditions) == 0 {
		return true
	}

	if rule.Logic == models.LogicOr {
		for _, cond := range rule.Conditions {
			if evaluateCondition(cond, answers) {
				return true
			}
		}
		return false
	}

	// AND is the default combine mode.
	for _, cond := range rule.Conditions {
		if !evaluateCondition(cond, answers) {
			return false
		}
	}
	return true
}

// ValidateRule checks a rule configuration against the set of question keys
// available in the form. A nil rule is valid.
func ValidateRule(rule *models.ConditionalRule, availableKeys []string) ValidationResult {
	if rule == nil {
		return ValidationResult{Valid: true}
	}

	var errs []string

	if rule.Logic != models.LogicAnd && rule.Logic != models.LogicOr {
		errs = append(errs, fmt.Sprintf("unknown logic %q, expected AND or OR", rule.Logic))
	}

	if len(rule.Conditions) == 0 {
		errs = append(errs, "rule has no conditions")
	}

	known := make(map[string]struct{}, len(availableKeys))
	for _, key := range availableKeys {
		known[key] = struct{}{}
	}

	for i, cond := range rule.Conditions {
		if _, ok := known[cond.QuestionKey]; !ok {
			errs = append(errs, fmt.Sprintf("condition %d references unknown question %q", i, cond.QuestionKey))
		}
		if !knownOperator(cond.Operator) {
			errs = append(errs, fmt.Sprintf("condition %d uses unknown operator %q", i, cond.Operator))
		}
		if cond.Value == nil || cond.Value == "" {
			errs = append(errs, fmt.Sprintf("condition %d is missing a value", i))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func knownOperator(op models.RuleOperator) bool {
	switch op {
	case models.OpEquals, models.OpNotEquals, models.OpContains,
		models.OpNotContains, models.OpGreaterThan, models.OpLessThan:
		return true
	}
	return false
}

func evaluateCondition(cond models.Condition, answers map[string]any) bool {
	answer, ok := answers[cond.QuestionKey]
	if !ok || isEmptyAnswer(answer) {
		return false
	}

	switch cond.Operator {
	case models.OpEquals:
		return looseEqual(answer, cond.Value)
	case models.OpNotEquals:
		return !looseEqual(answer, cond.Value)
	case models.OpContains:
		return containsValue(answer, cond.Value, false)
	case models.OpNotContains:
		return containsValue(answer, cond.Value, true)
	case models.OpGreaterThan:
		a, aok := toNumber(answer)
		b, bok := toNumber(cond.Value)
		return aok && bok && a > b
	case models.OpLessThan:
		a, aok := toNumber(answer)
		b, bok := toNumber(cond.Value)
		return aok && bok && a < b
	}
	return false
}

func isEmptyAnswer(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	}
	return false
}

// looseEqual compares two values the way a dynamically typed client would:
// numerically when both sides parse as numbers, otherwise by their string
// form.
func looseEqual(a, b any) bool {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// containsValue tests collection membership when the answer is a list,
// substring match when it is text. Other answer shapes have no containment
// semantics: contains is false, notContains is true.
func containsValue(answer, value any, negate bool) bool {
	var found, comparable bool

	switch v := answer.(type) {
	case []any:
		comparable = true
		for _, item := range v {
			if looseEqual(item, value) {
				found = true
				break
			}
		}
	case []string:
		comparable = true
		for _, item := range v {
			if looseEqual(item, value) {
				found = true
				break
			}
		}
	case string:
		comparable = true
		found = strings.Contains(v, fmt.Sprint(value))
	}

	if !comparable {
		return negate
	}
	if negate {
		return !found
	}
	return found
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
