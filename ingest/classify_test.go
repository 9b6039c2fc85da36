package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnkb/vulnkb/vulnkb"
)

func TestKeywordClassifierScoresVulnerableTerms(t *testing.T) {
	assert := assert.New(t)
	c := KeywordClassifier{}

	assert.Equal(vulnkb.ExampleVulnerable, c.Classify("the affected version is vulnerable to injection", 1))
	assert.Equal(vulnkb.ExampleVulnerable, c.Classify("An attacker can exploit this issue:", 3))
}

func TestKeywordClassifierScoresFixedTerms(t *testing.T) {
	assert := assert.New(t)
	c := KeywordClassifier{}

	assert.Equal(vulnkb.ExampleFixed, c.Classify("after updating to the patched release:", 0))
	assert.Equal(vulnkb.ExampleFixed, c.Classify("the fix looks like this", 0))
}

func TestKeywordClassifierTieBreaksOnPosition(t *testing.T) {
	assert := assert.New(t)
	c := KeywordClassifier{}

	// No cues at all: the first block is assumed vulnerable, later ones fixed.
	assert.Equal(vulnkb.ExampleVulnerable, c.Classify("see the following snippet:", 0))
	assert.Equal(vulnkb.ExampleFixed, c.Classify("see the following snippet:", 1))
}

func TestKeywordClassifierTieBreakIsPositionalBeyondTwoBlocks(t *testing.T) {
	assert := assert.New(t)
	c := KeywordClassifier{}

	// Known heuristic limitation: every tied block after the first is labeled
	// fixed, even in documents with three or more blocks where that reading
	// is dubious.
	assert.Equal(vulnkb.ExampleFixed, c.Classify("another snippet:", 2))
	assert.Equal(vulnkb.ExampleFixed, c.Classify("another snippet:", 5))
}

func TestKeywordClassifierIsCaseInsensitive(t *testing.T) {
	assert := assert.New(t)
	c := KeywordClassifier{}

	assert.Equal(vulnkb.ExampleVulnerable, c.Classify("VULNERABLE code below", 1))
}

func TestRuleClassifierFirstMatchWins(t *testing.T) {
	require := require.New(t)

	c, err := NewRuleClassifier([]vulnkb.ClassifierRule{
		{Predicate: `text contains "proof of concept"`, Label: vulnkb.ExampleVulnerable},
		{Predicate: `index > 0`, Label: vulnkb.ExampleFixed},
	})
	require.NoError(err)

	require.Equal(vulnkb.ExampleVulnerable, c.Classify("proof of concept below", 4))
	require.Equal(vulnkb.ExampleFixed, c.Classify("no cues here", 1))
}

func TestRuleClassifierFallsBackToKeywords(t *testing.T) {
	require := require.New(t)

	c, err := NewRuleClassifier([]vulnkb.ClassifierRule{
		{Predicate: `text contains "never-matches"`, Label: vulnkb.ExampleFixed},
	})
	require.NoError(err)

	require.Equal(vulnkb.ExampleVulnerable, c.Classify("this exploit is bad", 1))
}

func TestNewRuleClassifierRejectsUnknownLabel(t *testing.T) {
	require := require.New(t)

	_, err := NewRuleClassifier([]vulnkb.ClassifierRule{
		{Predicate: `true`, Label: "exploitable"},
	})
	require.Error(err)
}

func TestNewRuleClassifierRejectsBadPredicate(t *testing.T) {
	require := require.New(t)

	_, err := NewRuleClassifier([]vulnkb.ClassifierRule{
		{Predicate: `text +`, Label: vulnkb.ExampleFixed},
	})
	require.Error(err)
}
