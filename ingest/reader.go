package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/afero"
)

// Record files can contain large single-line descriptions.
const maxRecordLineBytes = 4 * 1024 * 1024

// RecordSource yields validated CveRecords one at a time. Malformed or invalid
// entries are logged and counted, never fatal.
type RecordSource interface {
	Each(fn func(CveRecord) error) (malformed int, err error)
}

// DecodeRecords streams newline-delimited JSON records from r. Lines that do
// not parse, fail validation or exceed the size cap are skipped and counted.
// An error returned by fn stops the stream and is passed through.
func DecodeRecords(r io.Reader, fn func(CveRecord) error) (malformed int, err error) {
	reader := bufio.NewReaderSize(r, 64*1024)

	line := 0
	for {
		raw, tooLong, err := readRecordLine(reader)
		if errors.Is(err, io.EOF) {
			return malformed, nil
		}
		if err != nil {
			return malformed, fmt.Errorf("could not read record stream: %w", err)
		}
		line++

		if tooLong {
			slog.Warn("skipping oversized record line", "line", line, "max_bytes", maxRecordLineBytes)
			malformed++
			continue
		}
		if len(raw) == 0 {
			continue
		}

		record := CveRecord{}
		if err := json.Unmarshal(raw, &record); err != nil {
			slog.Warn("skipping malformed record line", "line", line, "err", err)
			malformed++
			continue
		}
		if err := record.Validate(); err != nil {
			slog.Warn("skipping invalid record", "line", line, "err", err)
			malformed++
			continue
		}

		if err := fn(record); err != nil {
			return malformed, err
		}
	}
}

// readRecordLine reads one line, reporting rather than failing when it exceeds
// maxRecordLineBytes. The remainder of an oversized line is consumed so the
// stream stays in sync for the next record.
func readRecordLine(r *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return line, tooLong, err
		}
		if !tooLong {
			line = append(line, chunk...)
			if len(line) > maxRecordLineBytes {
				line = nil
				tooLong = true
			}
		}
		if !isPrefix {
			return line, tooLong, nil
		}
	}
}

// FileSource reads a local newline-delimited record file.
type FileSource struct {
	Fs   afero.Fs
	Path string
}

var _ RecordSource = FileSource{}

func (s FileSource) Each(fn func(CveRecord) error) (int, error) {
	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f, err := fs.Open(s.Path)
	if err != nil {
		return 0, fmt.Errorf("could not open record file: %w", err)
	}
	defer f.Close()

	return DecodeRecords(f, fn)
}
