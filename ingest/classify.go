package ingest

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/vulnkb/vulnkb/vulnkb"
)

// Classifier decides whether a code block shows the vulnerable or the fixed
// side of an advisory, given the text immediately preceding the block and the
// block's position in the document.
type Classifier interface {
	Classify(preceding string, blockIndex int) string
}

var (
	vulnerableTerms = []string{"vulnerable", "affected", "before", "bad", "incorrect", "issue", "problem", "exploit"}
	fixedTerms      = []string{"fix", "patch", "correct", "after", "updated", "safe", "secure", "remediat"}
)

// KeywordClassifier scores the preceding text against two keyword sets. On a
// tie the first block of the document is labeled vulnerable and later blocks
// fixed; position is the only tie-break and it is a convention, not a fact
// about the advisory.
type KeywordClassifier struct {
	VulnerableTerms []string
	FixedTerms      []string
}

var _ Classifier = KeywordClassifier{}

func (c KeywordClassifier) Classify(preceding string, blockIndex int) string {
	vulnTerms := c.VulnerableTerms
	if vulnTerms == nil {
		vulnTerms = vulnerableTerms
	}
	fixTerms := c.FixedTerms
	if fixTerms == nil {
		fixTerms = fixedTerms
	}

	lowered := strings.ToLower(preceding)
	vulnScore := scoreTerms(lowered, vulnTerms)
	fixScore := scoreTerms(lowered, fixTerms)

	switch {
	case vulnScore > fixScore:
		return vulnkb.ExampleVulnerable
	case fixScore > vulnScore:
		return vulnkb.ExampleFixed
	case blockIndex == 0:
		return vulnkb.ExampleVulnerable
	default:
		return vulnkb.ExampleFixed
	}
}

func scoreTerms(lowered string, terms []string) int {
	score := 0
	for _, term := range terms {
		score += strings.Count(lowered, term)
	}
	return score
}

// RuleEnv is the environment a classifier rule predicate is evaluated in.
type RuleEnv struct {
	Text  string `expr:"text"`
	Index int    `expr:"index"`
}

type compiledRule struct {
	predicate *vm.Program
	label     string
}

// RuleClassifier evaluates configured expr predicates before falling back to
// the keyword heuristic. The first matching rule wins.
type RuleClassifier struct {
	rules    []compiledRule
	fallback Classifier
}

var _ Classifier = RuleClassifier{}

func NewRuleClassifier(rules []vulnkb.ClassifierRule) (RuleClassifier, error) {
	c := RuleClassifier{fallback: KeywordClassifier{}}
	for i, rule := range rules {
		if rule.Label != vulnkb.ExampleVulnerable && rule.Label != vulnkb.ExampleFixed {
			return c, fmt.Errorf("classifier rule %d has unknown label %q", i+1, rule.Label)
		}
		program, err := expr.Compile(rule.Predicate, expr.Env(RuleEnv{}), expr.AsBool())
		if err != nil {
			return c, fmt.Errorf("error compiling classifier rule %d: %w", i+1, err)
		}
		c.rules = append(c.rules, compiledRule{predicate: program, label: rule.Label})
	}
	return c, nil
}

func (c RuleClassifier) Classify(preceding string, blockIndex int) string {
	env := RuleEnv{Text: preceding, Index: blockIndex}
	for _, rule := range c.rules {
		matched, err := expr.Run(rule.predicate, env)
		if err != nil {
			continue
		}
		if matched.(bool) {
			return rule.label
		}
	}
	return c.fallback.Classify(preceding, blockIndex)
}
