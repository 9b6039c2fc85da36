package ingest

import (
	"encoding/json"
	"time"
)

func unmarshalJSONTimeFormat(b []byte, formats ...string) (t time.Time, err error) {
	var timeUnmarshalled string
	err = json.Unmarshal(b, &timeUnmarshalled)
	if err != nil {
		return time.Time{}, err
	}

	var parsed time.Time

	for _, format := range formats {
		parsed, err = time.Parse(format, timeUnmarshalled)
		if err == nil {
			break
		}
	}

	if err != nil {
		return time.Time{}, err
	}

	return parsed, nil
}

// DateTime accepts the timestamp spellings seen across advisory sources and
// batch record files.
type DateTime struct {
	time.Time
}

var _ json.Unmarshaler = (*DateTime)(nil)

func (t *DateTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		*t = DateTime{}
		return nil
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999Z07:00",
		"2006-01-02",
	}
	tm, err := unmarshalJSONTimeFormat(b, formats...)
	if err != nil {
		return err
	}

	*t = DateTime{tm}
	return nil
}
