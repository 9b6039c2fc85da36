package vulnkb

import (
	"fmt"
	"strings"
	"time"
)

// Stats accumulates the outcome of a single ingestion run. It is created by
// the orchestrator and passed down the call chain; there is no global state.
type Stats struct {
	Pages    int
	Fetched  int
	Inserted int
	Updated  int
	Skipped  int
	Errors   int
	Elapsed  time.Duration
}

func (s *Stats) Merge(o Stats) {
	s.Pages += o.Pages
	s.Fetched += o.Fetched
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Errors += o.Errors
}

// Summary renders the block printed at the end of every run, successful or
// not, so partial progress is legible without reading logs.
func (s Stats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "---- ingestion summary ----\n")
	fmt.Fprintf(&b, "pages:    %d\n", s.Pages)
	fmt.Fprintf(&b, "fetched:  %d\n", s.Fetched)
	fmt.Fprintf(&b, "inserted: %d\n", s.Inserted)
	fmt.Fprintf(&b, "updated:  %d\n", s.Updated)
	fmt.Fprintf(&b, "skipped:  %d\n", s.Skipped)
	fmt.Fprintf(&b, "errors:   %d\n", s.Errors)
	fmt.Fprintf(&b, "elapsed:  %s\n", s.Elapsed.Round(time.Millisecond))
	return b.String()
}
