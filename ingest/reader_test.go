package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const recordLines = `{"source":"nvd","cve_id":"CVE-2024-1","title":"first","severity":"high","cwe_ids":["CWE-89"]}
not json at all
{"source":"nvd","cve_id":"CVE-2024-2","title":"second","severity":"low"}
{"source":"nvd","title":"missing cve id"}
{"source":"nvd","cve_id":"CVE-2024-3","severity":"catastrophic"}

{"source":"nvd","cve_id":"CVE-2024-4","published":"2024-02-01T10:00:00Z"}
`

func TestDecodeRecordsSkipsBadLines(t *testing.T) {
	require := require.New(t)

	var seen []string
	malformed, err := DecodeRecords(strings.NewReader(recordLines), func(r CveRecord) error {
		seen = append(seen, r.CveID)
		return nil
	})
	require.NoError(err)

	require.Equal([]string{"CVE-2024-1", "CVE-2024-2", "CVE-2024-4"}, seen)
	require.Equal(3, malformed, "unparseable line, missing cve_id and unknown severity are all skipped")
}

func TestDecodeRecordsParsesTimestamps(t *testing.T) {
	require := require.New(t)

	var got CveRecord
	_, err := DecodeRecords(strings.NewReader(`{"cve_id":"CVE-2024-4","published":"2024-02-01T10:00:00Z"}`+"\n"), func(r CveRecord) error {
		got = r
		return nil
	})
	require.NoError(err)
	require.Equal(2024, got.Published.Year())
}

func TestDecodeRecordsStopsOnCallbackError(t *testing.T) {
	require := require.New(t)

	boom := errors.New("writer unavailable")
	calls := 0
	_, err := DecodeRecords(strings.NewReader(recordLines), func(r CveRecord) error {
		calls++
		if r.CveID == "CVE-2024-2" {
			return boom
		}
		return nil
	})
	require.ErrorIs(err, boom)
	require.Equal(2, calls, "decoding stops at the first callback error")
}

func TestDecodeRecordsSkipsOversizedLines(t *testing.T) {
	require := require.New(t)

	oversized := `{"cve_id":"CVE-2024-9","description":"` + strings.Repeat("x", maxRecordLineBytes) + `"}`
	input := `{"cve_id":"CVE-2024-1","severity":"high"}` + "\n" +
		oversized + "\n" +
		`{"cve_id":"CVE-2024-2","severity":"low"}` + "\n"

	var seen []string
	malformed, err := DecodeRecords(strings.NewReader(input), func(r CveRecord) error {
		seen = append(seen, r.CveID)
		return nil
	})
	require.NoError(err, "an oversized line must not abort the stream")
	require.Equal(1, malformed)
	require.Equal([]string{"CVE-2024-1", "CVE-2024-2"}, seen, "records after the oversized line are still read")
}

func TestFileSourceReadsFromAfero(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(afero.WriteFile(fs, "/records.ndjson", []byte(recordLines), 0o644))

	src := FileSource{Fs: fs, Path: "/records.ndjson"}
	count := 0
	malformed, err := src.Each(func(r CveRecord) error {
		count++
		return nil
	})
	require.NoError(err)
	require.Equal(3, count)
	require.Equal(3, malformed)
}

func TestFileSourceMissingFile(t *testing.T) {
	require := require.New(t)

	src := FileSource{Fs: afero.NewMemMapFs(), Path: "/nope.ndjson"}
	_, err := src.Each(func(CveRecord) error { return nil })
	require.Error(err)
}
