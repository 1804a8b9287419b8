package eventlog

import "time"

const timeLayout = time.RFC3339Nano

// mustParseTime parses a timestamp written by SQLStore.Append. A parse
// failure here means the column was corrupted by something other than
// this package; the zero time is then returned and the row scan goes on.
func mustParseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
