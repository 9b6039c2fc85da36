package ingest

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vulnkb/vulnkb/vulnkb"
)

// Writer owns the conflict-safe writes into the vulnerability, code example
// and CWE mapping tables.
type Writer struct {
	DB *gorm.DB
}

// CodeExampleExists checks the dedup key (cve_id, cwe_id, content_hash). A nil
// cveID matches rows with a NULL cve_id.
func (w Writer) CodeExampleExists(cveID *string, cweID, contentHash string) (bool, error) {
	query := w.DB.Model(&vulnkb.CodeExample{}).
		Where("cwe_id = ? AND content_hash = ?", cweID, contentHash)
	if cveID == nil {
		query = query.Where("cve_id IS NULL")
	} else {
		query = query.Where("cve_id = ?", *cveID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("could not check for existing code example: %w", err)
	}
	return count > 0, nil
}

// InsertCodeExample inserts one example unless its dedup key already exists.
// The insert itself ignores uniqueness conflicts so a race between two
// processes attempting the same row is harmless.
func (w Writer) InsertCodeExample(example vulnkb.CodeExample) (inserted bool, err error) {
	exists, err := w.CodeExampleExists(example.CveID, example.CweID, example.ContentHash)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	result := w.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&example)
	if result.Error != nil {
		return false, fmt.Errorf("could not insert code example: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (w Writer) VulnerabilityExists(cveID string) (bool, error) {
	var count int64
	err := w.DB.Model(&vulnkb.Vulnerability{}).
		Where("cve_id = ?", cveID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("could not check for existing vulnerability: %w", err)
	}
	return count > 0, nil
}

// UpsertVulnerability inserts or updates by CVE id and reports which happened.
func (w Writer) UpsertVulnerability(vuln vulnkb.Vulnerability) (inserted bool, err error) {
	existing := vulnkb.Vulnerability{}
	result := w.DB.Where("cve_id = ?", vuln.CveID).First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("could not look up cve %s: %w", vuln.CveID, result.Error)
		}
		if err := w.DB.Create(&vuln).Error; err != nil {
			return false, fmt.Errorf("could not create cve %s: %w", vuln.CveID, err)
		}
		return true, nil
	}

	vuln.VulnID = existing.VulnID
	if err := w.DB.Model(&existing).Updates(&vuln).Error; err != nil {
		return false, fmt.Errorf("could not update cve %s: %w", vuln.CveID, err)
	}
	return false, nil
}

// UpsertMapping records that cweID was observed on cveID. A first observation
// creates the row with relevance 1.0; later observations only refresh the
// last_updated timestamp.
func (w Writer) UpsertMapping(cweID, cveID string) error {
	now := time.Now().UTC()
	mapping := vulnkb.CweCveMapping{}
	result := w.DB.
		Where(map[string]any{"cwe_id": cweID, "cve_id": cveID}).
		Attrs(vulnkb.CweCveMapping{
			CweID:          cweID,
			CveID:          cveID,
			RelevanceScore: 1.0,
			FirstSeen:      now,
		}).
		Assign(vulnkb.CweCveMapping{LastUpdated: now}).
		FirstOrCreate(&mapping)
	if result.Error != nil {
		return fmt.Errorf("could not upsert mapping (%s, %s): %w", cweID, cveID, result.Error)
	}
	return nil
}
