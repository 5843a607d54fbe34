package cache

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// compiledRule is a Rule with its pattern and condition pre-compiled at
// registration time.
type compiledRule struct {
	pattern   *regexp.Regexp
	triggers  map[string]struct{}
	condition *vm.Program
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern: %w", i, err)
		}

		triggers := make(map[string]struct{}, len(r.Triggers))
		for _, t := range r.Triggers {
			triggers[t] = struct{}{}
		}

		cr := compiledRule{pattern: re, triggers: triggers}
		if r.Condition != "" {
			program, err := expr.Compile(r.Condition, expr.AsBool(), expr.AllowUndefinedVariables())
			if err != nil {
				return nil, fmt.Errorf("rule %d: invalid condition: %w", i, err)
			}
			cr.condition = program
		}
		compiled = append(compiled, cr)
	}
	return compiled, nil
}

// firesOn reports whether the rule is bound to the given trigger.
func (r *compiledRule) firesOn(trigger string) bool {
	_, ok := r.triggers[trigger]
	return ok
}

// matchesKey reports whether the key falls under the rule's pattern.
func (r *compiledRule) matchesKey(key string) bool {
	return r.pattern.MatchString(key)
}

// matchesValue evaluates the optional condition against the decoded value.
// Rules without a condition match every value; values that are not JSON or
// conditions that error are treated as non-matching.
func (r *compiledRule) matchesValue(decoded []byte) bool {
	if r.condition == nil {
		return true
	}
	var value any
	if err := json.Unmarshal(decoded, &value); err != nil {
		return false
	}
	out, err := expr.Run(r.condition, map[string]any{"value": value})
	if err != nil {
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}
