package cvefeed

import (
	"fmt"
	"log/slog"

	"github.com/vulnkb/vulnkb/ingest"
)

// Source adapts a feed repository into an ingest.RecordSource: clone or update
// the mirror, then stream every record file through the NDJSON decoder.
type Source struct {
	Remote string
	// Path is the local mirror directory, e.g. "cvefeed.git".
	Path string
}

var _ ingest.RecordSource = Source{}

func (s Source) Each(fn func(ingest.CveRecord) error) (malformed int, err error) {
	repo, err := GetRepo(s.Remote, s.Path)
	if err != nil {
		return 0, fmt.Errorf("could not open feed repository: %w", err)
	}
	if err := UpdateRepo(repo); err != nil {
		return 0, fmt.Errorf("could not update feed repository: %w", err)
	}

	files, err := RecordFiles(repo)
	if err != nil {
		return 0, fmt.Errorf("could not list record files: %w", err)
	}

	for _, file := range files {
		slog.Debug("reading record file", "name", file.Name)
		fileMalformed, err := ingest.DecodeRecords(file.Content, fn)
		file.Content.Close()
		malformed += fileMalformed
		if err != nil {
			return malformed, err
		}
	}
	return malformed, nil
}
