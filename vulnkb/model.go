package vulnkb

import "time"

const (
	SeverityNone     = "none"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// KnownSeverity reports whether s is one of the severity labels used by
// either the remote advisory source or the batch record files.
func KnownSeverity(s string) bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityModerate, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

const (
	ExampleVulnerable = "vulnerable"
	ExampleFixed      = "fixed"
	ExampleExploit    = "exploit"
)

type Vulnerability struct {
	CveID            string `gorm:"type:varchar(80);not null;uniqueIndex:ux_vulnerability_cve_id"`
	Source           string `gorm:"type:varchar(40)"`
	Title            string
	Description      string
	Severity         string   `gorm:"type:varchar(16)"`
	Cvss3Score       float64  `gorm:"type:numeric"`
	Cvss3Vector      string   `gorm:"type:varchar(120)"`
	CweIDs           []string `gorm:"serializer:json"`
	References       []string `gorm:"serializer:json"`
	Platforms        []string `gorm:"serializer:json"`
	ExploitAvailable bool     `gorm:"type:boolean;check:exploit_available IN (0, 1)"`
	Embedding        string
	Published        time.Time
	Modified         time.Time
	VulnID           int `gorm:"primaryKey;not null;index:ix_vulnerability_vuln_id"`
}

// CodeExample rows are insert-only. Identity is (cve_id, cwe_id, content_hash);
// the dedup lookup in ingest prevents re-insertion, nothing mutates them.
type CodeExample struct {
	CveID       *string `gorm:"type:varchar(80);uniqueIndex:ux_code_example_identity"`
	CweID       string  `gorm:"type:varchar(40);not null;uniqueIndex:ux_code_example_identity"`
	ContentHash string  `gorm:"type:varchar(64);not null;uniqueIndex:ux_code_example_identity"`
	Language    string  `gorm:"type:varchar(40)"`
	PackageName string
	ExampleType string `gorm:"type:varchar(16)"`
	Code        string
	Explanation string
	SourceURL   string
	Embedding   string
	CreatedAt   time.Time
	ExampleID   int `gorm:"primaryKey;not null;index:ix_code_example_example_id"`
}

type CweCveMapping struct {
	CweID          string  `gorm:"type:varchar(40);not null;uniqueIndex:ux_cwe_cve_mapping"`
	CveID          string  `gorm:"type:varchar(80);not null;uniqueIndex:ux_cwe_cve_mapping"`
	RelevanceScore float64 `gorm:"type:numeric"`
	FirstSeen      time.Time
	LastUpdated    time.Time
	MappingID      int `gorm:"primaryKey;not null;index:ix_cwe_cve_mapping_mapping_id"`
}

// IngestionCheckpoint is keyed by (source, ecosystem, severity). Ecosystem and
// severity are empty strings when the run is unfiltered.
type IngestionCheckpoint struct {
	Source        string `gorm:"type:varchar(40);not null;uniqueIndex:ux_ingestion_checkpoint_key"`
	Ecosystem     string `gorm:"type:varchar(40);uniqueIndex:ux_ingestion_checkpoint_key"`
	Severity      string `gorm:"type:varchar(16);uniqueIndex:ux_ingestion_checkpoint_key"`
	NextPage      int
	TotalFetched  int
	TotalInserted int
	Exhausted     bool   `gorm:"type:boolean;check:exhausted IN (0, 1)"`
	LastCveID     string `gorm:"type:varchar(80)"`
	UpdatedAt     time.Time
	CheckpointID  int `gorm:"primaryKey;not null;index:ix_ingestion_checkpoint_checkpoint_id"`
}
