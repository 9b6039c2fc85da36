package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/vulnkb/vulnkb/vulnkb"
)

// RemoteOptions tunes one invocation of the remote-mode loop.
type RemoteOptions struct {
	Ecosystem string
	Severity  string
	// MaxPages caps how many pages this invocation processes; 0 means run
	// until the source is exhausted.
	MaxPages int
	// Reset rewinds the checkpoint before the run starts.
	Reset bool
}

// IngestRemote drives the resumable pagination loop: load checkpoint, fetch a
// page, process its advisories through the worker pool, persist the advanced
// checkpoint, repeat. A page whose item count falls short of the page size
// marks the source exhausted and ends the run.
//
// Pages are strictly sequential; page N+1 is never requested before page N's
// checkpoint write completed. That is what makes a crash mid-page safe: the
// next run re-requests at most one already-attempted page, and every write
// on that page is idempotent.
func IngestRemote(
	ctx context.Context,
	db *gorm.DB,
	api AdvisoryFetcher,
	embedder Embedder,
	config vulnkb.Config,
	opts RemoteOptions,
) (stats vulnkb.Stats, err error) {
	start := time.Now()
	defer func() {
		stats.Elapsed = time.Since(start)
	}()

	classifier, err := NewRuleClassifier(config.ClassifierRules)
	if err != nil {
		return stats, fmt.Errorf("could not build classifier: %w", err)
	}

	checkpoints := vulnkb.CheckpointStore{DB: db}
	writer := Writer{DB: db}
	extractor := Extractor{Classifier: classifier}

	source := config.Remote.Source
	if opts.Reset {
		slog.Info("resetting checkpoint", "source", source, "ecosystem", opts.Ecosystem, "severity", opts.Severity)
		if err := checkpoints.Reset(source, opts.Ecosystem, opts.Severity); err != nil {
			return stats, err
		}
	}

	checkpoint, err := checkpoints.Get(source, opts.Ecosystem, opts.Severity)
	if err != nil {
		return stats, err
	}
	if checkpoint.Exhausted {
		slog.Info("source already exhausted, nothing to do",
			"source", source,
			"total_fetched", checkpoint.TotalFetched,
			"total_inserted", checkpoint.TotalInserted,
		)
		return stats, nil
	}

	pageSize := config.Remote.PageSize
	page := checkpoint.NextPage

	for {
		if opts.MaxPages > 0 && stats.Pages >= opts.MaxPages {
			slog.Info("page budget for this invocation reached", "pages", stats.Pages)
			break
		}

		slog.Info("fetching advisory page", "page", page, "per_page", pageSize)
		advisories, err := api.ListAdvisories(ctx,
			Page(page),
			PerPage(pageSize),
			Ecosystem(opts.Ecosystem),
			Severity(opts.Severity),
		)
		if err != nil {
			// Checkpoint was not advanced for this page; the next run
			// retries it.
			return stats, fmt.Errorf("could not fetch page %d: %w", page, err)
		}

		if len(advisories) == 0 {
			if err := checkpoints.Update(source, opts.Ecosystem, opts.Severity, page, 0, 0, true); err != nil {
				return stats, err
			}
			slog.Info("source exhausted", "page", page)
			break
		}

		pageStats := processPage(ctx, advisories, config.Remote.Concurrency, api, extractor, embedder, writer)
		stats.Merge(pageStats)

		exhausted := len(advisories) < pageSize
		if err := checkpoints.Update(source, opts.Ecosystem, opts.Severity, page+1, len(advisories), pageStats.Inserted, exhausted); err != nil {
			return stats, err
		}

		stats.Pages++
		stats.Fetched += len(advisories)
		slog.Info("page complete",
			"page", page,
			"advisories", len(advisories),
			"inserted", pageStats.Inserted,
			"skipped", pageStats.Skipped,
			"errors", pageStats.Errors,
		)

		if exhausted {
			slog.Info("source exhausted", "page", page)
			break
		}
		page++

		// Keep a floor on request spacing even when the rate limit headers
		// report ample quota.
		time.Sleep(config.Remote.PageDelay.Duration)
	}

	return stats, nil
}

type advisoryResult struct {
	inserted int
	skipped  int
}

func processPage(
	ctx context.Context,
	advisories []AdvisoryRecord,
	concurrency int,
	api AdvisoryFetcher,
	extractor Extractor,
	embedder Embedder,
	writer Writer,
) vulnkb.Stats {
	stats := vulnkb.Stats{}

	results := MapPool(advisories, concurrency, func(adv AdvisoryRecord) (advisoryResult, error) {
		return processAdvisory(ctx, adv, api, extractor, embedder, writer)
	})

	for _, result := range results {
		if result == nil {
			stats.Errors++
			continue
		}
		stats.Inserted += result.inserted
		stats.Skipped += result.skipped
	}
	return stats
}

func processAdvisory(
	ctx context.Context,
	listed AdvisoryRecord,
	api AdvisoryFetcher,
	extractor Extractor,
	embedder Embedder,
	writer Writer,
) (advisoryResult, error) {
	result := advisoryResult{}

	// The list endpoint carries summaries only; the markdown description the
	// extractor needs comes from the detail endpoint.
	advisory, err := api.GetAdvisory(ctx, listed.ID)
	if err != nil {
		return result, fmt.Errorf("could not fetch advisory %s: %w", listed.ID, err)
	}

	examples := extractor.Extract(advisory)
	if len(examples) == 0 {
		slog.Debug("advisory yields no examples", "advisory", advisory.ID)
		result.skipped++
		return result, nil
	}

	cveID := advisory.CveID.UnwrapAsPtr()

	for _, example := range examples {
		hash := vulnkb.ContentHash(example.Code)

		exists, err := writer.CodeExampleExists(cveID, example.CweID, hash)
		if err != nil {
			return result, err
		}
		if exists {
			result.skipped++
			continue
		}

		vector, err := embedder.Embed(ctx, example.Code+"\n\n"+example.Explanation)
		if err != nil {
			return result, fmt.Errorf("could not embed example for %s: %w", advisory.ID, err)
		}

		inserted, err := writer.InsertCodeExample(vulnkb.CodeExample{
			CveID:       cveID,
			CweID:       example.CweID,
			ContentHash: hash,
			Language:    example.Language,
			PackageName: example.PackageName,
			ExampleType: example.ExampleType,
			Code:        example.Code,
			Explanation: example.Explanation,
			SourceURL:   example.SourceURL,
			Embedding:   vulnkb.EncodeVector(vector),
		})
		if err != nil {
			return result, err
		}
		if inserted {
			result.inserted++
		} else {
			result.skipped++
		}
	}

	advisory.CveID.IfSome(func(cve string) {
		for _, cweRef := range advisory.Cwes {
			if err := writer.UpsertMapping(cweRef.CweID, cve); err != nil {
				slog.Error("could not upsert cwe mapping", "cwe", cweRef.CweID, "cve", cve, "err", err)
			}
		}
	})

	return result, nil
}
