package ingest

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// Blocks shorter than this are treated as formatting noise.
	minBlockLength = 10
	// How much text before a block is inspected for classification cues.
	classifyWindow = 200
)

var fencedBlockPattern = regexp.MustCompile("(?s)```([A-Za-z0-9+#._-]*)[ \t]*\n(.*?)```")

// ExtractedExample is one (code block, CWE) pair produced from an advisory
// description. Every surviving block is crossed with every CWE on the
// advisory, since one sample can be evidence for several weakness classes.
type ExtractedExample struct {
	CweID       string
	Language    string
	PackageName string
	ExampleType string
	Code        string
	Explanation string
	SourceURL   string
}

// Extractor mines fenced code blocks out of markdown advisory descriptions.
type Extractor struct {
	Classifier Classifier
}

// Extract returns zero examples for advisories with no description or no CWE
// references; the caller counts those as skips, not errors.
func (e Extractor) Extract(adv AdvisoryRecord) []ExtractedExample {
	if strings.TrimSpace(adv.Description) == "" || len(adv.Cwes) == 0 {
		return nil
	}

	classifier := e.Classifier
	if classifier == nil {
		classifier = KeywordClassifier{}
	}

	ecosystem := ""
	packageName := ""
	OptionalFirst(adv.Affected).IfSome(func(v AffectedPackage) {
		ecosystem = v.Ecosystem
		packageName = v.Package
	})
	sourceURL := ""
	OptionalFirst(adv.References).IfSome(func(v Reference) {
		sourceURL = v.URL
	})

	matches := fencedBlockPattern.FindAllStringSubmatchIndex(adv.Description, -1)

	examples := []ExtractedExample{}
	blockIndex := 0
	for _, m := range matches {
		language := adv.Description[m[2]:m[3]]
		code := adv.Description[m[4]:m[5]]
		if len(strings.TrimSpace(code)) < minBlockLength {
			continue
		}
		if language == "" {
			language = strings.ToLower(ecosystem)
		}

		windowStart := m[0] - classifyWindow
		if windowStart < 0 {
			windowStart = 0
		}
		preceding := adv.Description[windowStart:m[0]]

		exampleType := classifier.Classify(preceding, blockIndex)
		explanation := buildExplanation(adv, exampleType)

		for _, cwe := range adv.Cwes {
			examples = append(examples, ExtractedExample{
				CweID:       cwe.CweID,
				Language:    language,
				PackageName: packageName,
				ExampleType: exampleType,
				Code:        strings.TrimSpace(code),
				Explanation: explanation,
				SourceURL:   sourceURL,
			})
		}
		blockIndex++
	}

	return examples
}

func buildExplanation(adv AdvisoryRecord, exampleType string) string {
	summary := strings.TrimSpace(adv.Summary)
	if summary == "" {
		summary = adv.ID
	}
	return fmt.Sprintf("%s code example for %q (severity: %s).", exampleType, summary, adv.Severity)
}
