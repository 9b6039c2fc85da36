package ingest

import (
	"fmt"

	"github.com/moznion/go-optional"

	"github.com/vulnkb/vulnkb/vulnkb"
)

// AdvisoryRecord is the shape returned by the remote advisory API, both from
// the paginated list endpoint and the per-advisory detail endpoint. The detail
// response additionally fills Description with the markdown body the code
// example extractor works on.
type AdvisoryRecord struct {
	ID          string                  `json:"id"`
	CveID       optional.Option[string] `json:"cve_id"`
	Summary     string                  `json:"summary"`
	Description string                  `json:"description"`
	Severity    string                  `json:"severity"`
	Cwes        []CweRef                `json:"cwes"`
	References  []Reference             `json:"references"`
	Affected    []AffectedPackage       `json:"affected"`
	Published   DateTime                `json:"published_at"`
	Updated     DateTime                `json:"updated_at"`
}

type CweRef struct {
	CweID string `json:"cwe_id"`
	Name  string `json:"name"`
}

type Reference struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type AffectedPackage struct {
	Ecosystem       string `json:"ecosystem"`
	Package         string `json:"package"`
	VulnerableRange string `json:"vulnerable_version_range"`
	PatchedVersion  string `json:"first_patched_version"`
}

// CveRecord is one line of a batch input file. Identity is the CVE id, so
// re-ingesting the same record updates the existing row.
type CveRecord struct {
	Source           string   `json:"source"`
	CveID            string   `json:"cve_id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Severity         string   `json:"severity"`
	CvssScore        float64  `json:"cvss_score"`
	CvssVector       string   `json:"cvss_vector"`
	CweIDs           []string `json:"cwe_ids"`
	Published        DateTime `json:"published"`
	Modified         DateTime `json:"modified"`
	References       []string `json:"references"`
	Platforms        []string `json:"platforms"`
	ExploitAvailable bool     `json:"exploit_available"`
}

// Validate rejects records that must not travel further down the pipeline.
func (r CveRecord) Validate() error {
	if r.CveID == "" {
		return fmt.Errorf("record has no cve_id")
	}
	if r.Severity != "" && !vulnkb.KnownSeverity(r.Severity) {
		return fmt.Errorf("record %s has unknown severity %q", r.CveID, r.Severity)
	}
	return nil
}
