package vulnkb

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CheckpointStore persists pagination state per (source, ecosystem, severity)
// key. Writes are last-writer-wins on the page pointer and additive on the
// counters; concurrent runs against the same key are not supported and no
// lease is taken.
type CheckpointStore struct {
	DB *gorm.DB
}

func checkpointKey(source, ecosystem, severity string) map[string]any {
	return map[string]any{
		"source":    source,
		"ecosystem": ecosystem,
		"severity":  severity,
	}
}

// Get returns the checkpoint for the key, creating a zeroed one (page 1, zero
// totals, not exhausted) if none exists yet.
func (s CheckpointStore) Get(source, ecosystem, severity string) (IngestionCheckpoint, error) {
	cp := IngestionCheckpoint{}
	result := s.DB.
		Where(checkpointKey(source, ecosystem, severity)).
		Attrs(IngestionCheckpoint{
			Source:    source,
			Ecosystem: ecosystem,
			Severity:  severity,
			NextPage:  1,
		}).
		FirstOrCreate(&cp)
	if result.Error != nil {
		return cp, fmt.Errorf("could not load checkpoint for %q: %w", source, result.Error)
	}
	return cp, nil
}

// Update overwrites the page pointer and exhausted flag and adds the deltas to
// the cumulative totals.
func (s CheckpointStore) Update(source, ecosystem, severity string, nextPage, fetchedDelta, insertedDelta int, exhausted bool) error {
	if _, err := s.Get(source, ecosystem, severity); err != nil {
		return err
	}
	result := s.DB.
		Model(&IngestionCheckpoint{}).
		Where(checkpointKey(source, ecosystem, severity)).
		Updates(map[string]any{
			"next_page":      nextPage,
			"total_fetched":  gorm.Expr("total_fetched + ?", fetchedDelta),
			"total_inserted": gorm.Expr("total_inserted + ?", insertedDelta),
			"exhausted":      exhausted,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("could not update checkpoint for %q: %w", source, result.Error)
	}
	return nil
}

// SetLastCve records the identifier of the most recently processed record.
// Used by batch mode, which has no page pointer to advance.
func (s CheckpointStore) SetLastCve(source, ecosystem, severity, cveID string) error {
	if _, err := s.Get(source, ecosystem, severity); err != nil {
		return err
	}
	result := s.DB.
		Model(&IngestionCheckpoint{}).
		Where(checkpointKey(source, ecosystem, severity)).
		Updates(map[string]any{
			"last_cve_id": cveID,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("could not record last cve for %q: %w", source, result.Error)
	}
	return nil
}

// Reset rewinds the checkpoint to page 1 and zeroes the totals. Rows already
// ingested from earlier runs are left alone.
func (s CheckpointStore) Reset(source, ecosystem, severity string) error {
	if _, err := s.Get(source, ecosystem, severity); err != nil {
		return err
	}
	result := s.DB.
		Model(&IngestionCheckpoint{}).
		Where(checkpointKey(source, ecosystem, severity)).
		Updates(map[string]any{
			"next_page":      1,
			"total_fetched":  0,
			"total_inserted": 0,
			"exhausted":      false,
			"last_cve_id":    "",
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("could not reset checkpoint for %q: %w", source, result.Error)
	}
	return nil
}
