package ingest

import (
	"log/slog"

	"github.com/gammazero/workerpool"
)

// MapPool runs fn over items with at most limit concurrent invocations and
// returns results positionally aligned to the input. A failed (or panicking)
// item leaves a nil slot instead of aborting the batch; items are independent
// and one bad advisory must not sink a page.
func MapPool[T any, R any](items []T, limit int, fn func(T) (R, error)) []*R {
	if limit > len(items) {
		limit = len(items)
	}
	if limit < 1 {
		limit = 1
	}

	results := make([]*R, len(items))
	wp := workerpool.New(limit)
	for i, item := range items {
		i, item := i, item
		wp.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("worker panicked", "index", i, "panic", r)
				}
			}()
			result, err := fn(item)
			if err != nil {
				slog.Error("worker item failed", "index", i, "err", err)
				return
			}
			results[i] = &result
		})
	}
	wp.StopWait()

	return results
}
