package tokens

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp is a time that decodes from either an RFC 3339 string or a
// number of milliseconds since the Unix epoch. Older token files and
// browser clients use the numeric form. It always encodes as RFC 3339.
type Timestamp struct {
	time.Time
}

func At(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		return ts.Time.UnmarshalJSON(b)
	}
	var ms json.Number
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	n, err := ms.Int64()
	if err != nil {
		f, ferr := ms.Float64()
		if ferr != nil {
			return fmt.Errorf("timestamp %q: %w", ms, err)
		}
		n = int64(f)
	}
	ts.Time = time.UnixMilli(n).UTC()
	return nil
}
