package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/vulnkb/vulnkb/vulnkb"
)

// BatchOptions tunes one invocation of the batch-mode loop.
type BatchOptions struct {
	// Incremental skips the existence filter so already-known CVE ids are
	// overwritten instead of ignored.
	Incremental bool
	// BatchSize overrides the configured records-per-batch when > 0.
	BatchSize int
	// Progress draws a per-batch progress bar on stderr.
	Progress bool
}

// IngestBatch streams records from src, groups them into fixed-size batches
// and ingests each batch: existence filter (unless incremental), sub-batched
// embedding generation, idempotent upserts and CWE mapping writes. Individual
// record failures are counted and do not abort the run; the final checkpoint
// write records the last CVE id seen.
func IngestBatch(
	ctx context.Context,
	db *gorm.DB,
	embedder Embedder,
	config vulnkb.Config,
	src RecordSource,
	opts BatchOptions,
) (stats vulnkb.Stats, err error) {
	start := time.Now()
	defer func() {
		stats.Elapsed = time.Since(start)
	}()

	batchSize := config.Batch.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	checkpoints := vulnkb.CheckpointStore{DB: db}
	writer := Writer{DB: db}

	lastCveID := ""
	batch := make([]CveRecord, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		processBatch(ctx, batch, writer, embedder, config.Batch.EmbedBatchSize, opts, &stats)
		lastCveID = batch[len(batch)-1].CveID
		batch = batch[:0]
		return nil
	}

	malformed, err := src.Each(func(record CveRecord) error {
		stats.Fetched++
		batch = append(batch, record)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	stats.Skipped += malformed
	if err != nil {
		return stats, err
	}
	if err := flush(); err != nil {
		return stats, err
	}

	if lastCveID != "" {
		if err := checkpoints.SetLastCve(config.Batch.Source, "", "", lastCveID); err != nil {
			return stats, err
		}
	}

	slog.Info("batch ingestion finished",
		"records", stats.Fetched,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
	)
	return stats, nil
}

func processBatch(
	ctx context.Context,
	batch []CveRecord,
	writer Writer,
	embedder Embedder,
	embedBatchSize int,
	opts BatchOptions,
	stats *vulnkb.Stats,
) {
	if embedBatchSize <= 0 {
		embedBatchSize = 50
	}

	surviving := make([]CveRecord, 0, len(batch))
	for _, record := range batch {
		if !opts.Incremental {
			exists, err := writer.VulnerabilityExists(record.CveID)
			if err != nil {
				slog.Error("existence check failed", "cve", record.CveID, "err", err)
				stats.Errors++
				continue
			}
			if exists {
				stats.Skipped++
				continue
			}
		}
		surviving = append(surviving, record)
	}
	if len(surviving) == 0 {
		return
	}

	var bar *pb.ProgressBar
	if opts.Progress {
		bar = pb.StartNew(len(surviving))
		defer bar.Finish()
	}

	for _, chunk := range lo.Chunk(surviving, embedBatchSize) {
		vectors := embedChunk(ctx, chunk, embedder, stats)

		for i, record := range chunk {
			if bar != nil {
				bar.Increment()
			}
			if vectors[i] == nil {
				// Embedding already failed and was counted.
				continue
			}
			inserted, err := upsertRecord(record, vectors[i], writer)
			if err != nil {
				slog.Error("could not ingest record", "cve", record.CveID, "err", err)
				stats.Errors++
				continue
			}
			if inserted {
				stats.Inserted++
			} else {
				stats.Updated++
			}
		}
	}
}

// embedChunk embeds a chunk in one batched call, degrading to per-record
// calls (which carry the truncate-then-fallback behavior) when the batched
// call fails. Records whose embedding cannot be generated get a nil slot and
// an error count.
func embedChunk(ctx context.Context, chunk []CveRecord, embedder Embedder, stats *vulnkb.Stats) [][]float64 {
	texts := make([]string, len(chunk))
	for i, record := range chunk {
		texts[i] = embeddingText(record)
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors
	}
	slog.Warn("batched embedding call failed, falling back to per-record calls", "err", err)

	vectors = make([][]float64, len(chunk))
	for i, text := range texts {
		vector, err := embedder.Embed(ctx, text)
		if err != nil {
			slog.Error("could not embed record", "cve", chunk[i].CveID, "err", err)
			stats.Errors++
			continue
		}
		vectors[i] = vector
	}
	return vectors
}

func embeddingText(record CveRecord) string {
	return record.Title + "\n\n" + record.Description
}

func upsertRecord(record CveRecord, vector []float64, writer Writer) (inserted bool, err error) {
	inserted, err = writer.UpsertVulnerability(vulnkb.Vulnerability{
		CveID:            record.CveID,
		Source:           record.Source,
		Title:            record.Title,
		Description:      record.Description,
		Severity:         record.Severity,
		Cvss3Score:       record.CvssScore,
		Cvss3Vector:      record.CvssVector,
		CweIDs:           record.CweIDs,
		References:       record.References,
		Platforms:        record.Platforms,
		ExploitAvailable: record.ExploitAvailable,
		Embedding:        vulnkb.EncodeVector(vector),
		Published:        record.Published.Time,
		Modified:         record.Modified.Time,
	})
	if err != nil {
		return false, err
	}

	for _, cweID := range record.CweIDs {
		if err := writer.UpsertMapping(cweID, record.CveID); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}
