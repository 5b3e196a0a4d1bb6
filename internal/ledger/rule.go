package ledger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Rule maps transactions to a category by keyword, regex, and amount criteria.
// Higher priority rules are evaluated first; ties break by ID ascending.
type Rule struct {
	ID         string
	CategoryID string
	Priority   int
	Keywords   []string
	Regex      string
	AmountMin  *decimal.Decimal
	AmountMax  *decimal.Decimal
}

// MatchResult describes why a rule matched and how confident the match is.
type MatchResult struct {
	Confidence float64
	MatchedBy  string // "keyword" or "regex"
	Matched    string
	Factors    []string
}

// CompiledRule is a Rule with its regex compiled and keywords normalized.
type CompiledRule struct {
	Rule
	keywords []string
	pattern  *regexp.Regexp
	anchored bool
}

// CompileRules prepares a rule set for matching: keywords are normalized,
// regexes compiled case-insensitively, and the set sorted by priority
// descending with rule ID ascending as the deterministic tie-break. Rules with
// invalid regexes are dropped and reported in the returned warning list.
func CompileRules(rules []Rule) ([]CompiledRule, []string) {
	var warnings []string
	compiled := make([]CompiledRule, 0, len(rules))
	for _, r := range rules {
		cr := CompiledRule{Rule: r}
		for _, kw := range r.Keywords {
			if kw = NormalizeDescription(kw); kw != "" {
				cr.keywords = append(cr.keywords, kw)
			}
		}
		if r.Regex != "" {
			p, err := regexp.Compile("(?i)" + r.Regex)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("rule %s: invalid regex %q: %v", r.ID, r.Regex, err))
				continue
			}
			cr.pattern = p
			cr.anchored = strings.HasPrefix(r.Regex, "^") || strings.HasSuffix(r.Regex, "$")
		}
		if len(cr.keywords) == 0 && cr.pattern == nil {
			warnings = append(warnings, fmt.Sprintf("rule %s: no keywords or regex, rule will never match", r.ID))
			continue
		}
		compiled = append(compiled, cr)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority > compiled[j].Priority
		}
		return compiled[i].ID < compiled[j].ID
	})
	return compiled, warnings
}

// Confidence scoring is additive so that every extra constraint a rule imposes
// can only raise the score:
//
//	base: keyword substring 0.70, regex 0.85, anchored regex 0.92
//	+ up to 0.10 for keyword length (len/100, capped)
//	+ 0.05 when amount bounds are present and satisfied
//	+ 0.03 when the bound window is narrow (width <= 10% of the amount)
//	+ priority/5000, capped at 0.02
//
// clamped to [0, 1]. A keyword+bounds match therefore always scores at least
// as high as the same keyword alone.
const (
	confKeywordBase   = 0.70
	confRegexBase     = 0.85
	confAnchoredBase  = 0.92
	confBoundsBonus   = 0.05
	confNarrowBonus   = 0.03
	confPriorityCap   = 0.02
	confKeywordLenCap = 0.10
)

// Match evaluates the rule against a normalized description and signed amount.
// Amount bounds compare against the absolute value, since debits are negative.
// Returns nil when the rule does not match.
func (r *CompiledRule) Match(normDesc string, amount decimal.Decimal) *MatchResult {
	absAmount := amount.Abs()
	bounded := r.AmountMin != nil || r.AmountMax != nil
	if r.AmountMin != nil && absAmount.LessThan(*r.AmountMin) {
		return nil
	}
	if r.AmountMax != nil && absAmount.GreaterThan(*r.AmountMax) {
		return nil
	}

	res := MatchResult{}
	switch {
	case r.matchKeyword(normDesc, &res):
	case r.pattern != nil && r.matchRegex(normDesc, &res):
	default:
		return nil
	}

	if bounded {
		res.Confidence += confBoundsBonus
		res.Factors = append(res.Factors, "amount within bounds")
		if r.AmountMin != nil && r.AmountMax != nil && !absAmount.IsZero() {
			width := r.AmountMax.Sub(*r.AmountMin)
			if width.LessThanOrEqual(absAmount.Div(decimal.NewFromInt(10))) {
				res.Confidence += confNarrowBonus
				res.Factors = append(res.Factors, "narrow amount window")
			}
		}
	}
	if bonus := float64(r.Priority) / 5000; bonus > 0 {
		res.Confidence += min(bonus, confPriorityCap)
	}
	res.Confidence = min(res.Confidence, 1.0)
	return &res
}

func (r *CompiledRule) matchKeyword(normDesc string, res *MatchResult) bool {
	for _, kw := range r.keywords {
		if strings.Contains(normDesc, kw) {
			res.MatchedBy = "keyword"
			res.Matched = kw
			res.Confidence = confKeywordBase + min(float64(len(kw))/100, confKeywordLenCap)
			res.Factors = append(res.Factors, fmt.Sprintf("keyword match: %s", kw))
			return true
		}
	}
	return false
}

func (r *CompiledRule) matchRegex(normDesc string, res *MatchResult) bool {
	if !r.pattern.MatchString(normDesc) {
		return false
	}
	res.MatchedBy = "regex"
	res.Matched = r.pattern.FindString(normDesc)
	if r.anchored {
		res.Confidence = confAnchoredBase
		res.Factors = append(res.Factors, fmt.Sprintf("anchored regex match: %s", r.Regex))
	} else {
		res.Confidence = confRegexBase
		res.Factors = append(res.Factors, fmt.Sprintf("regex match: %s", r.Regex))
	}
	return true
}
