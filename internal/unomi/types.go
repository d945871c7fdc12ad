package unomi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Profile is one profile document returned by a profile search.
type Profile struct {
	ItemID     string            `json:"itemId"`
	Properties ProfileProperties `json:"properties"`
}

// ProfileProperties holds the profile properties this backend reads.
// Click profiles are keyed by "userID", every other profile by "userId";
// both spellings exist in the store.
type ProfileProperties struct {
	UserID     string    `json:"userId"`
	ClickerID  string    `json:"userID"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Amount     Number    `json:"amount"`
	LoginTime  Timestamp `json:"loginTime"`
	Status     string    `json:"status"`
	ItemType   string    `json:"itemType"`
	PolicyName string    `json:"policyName"`
}

// ProfileList is a page of profile search results.
type ProfileList struct {
	List      []Profile `json:"list"`
	Offset    int       `json:"offset"`
	PageSize  int       `json:"pageSize"`
	TotalSize int64     `json:"totalSize"`
}

type searchRequest struct {
	Offset    int       `json:"offset"`
	Limit     int       `json:"limit"`
	Condition Condition `json:"condition"`
}

// Number decodes a JSON number or numeric string. Values that cannot be
// parsed decode to zero with Valid=false instead of failing the whole page.
type Number struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	raw := string(trimmed)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	n.Value = value
	n.Valid = true
	return nil
}

// Timestamp decodes an RFC 3339 string or epoch milliseconds.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		parsed, ok := parseTime(strings.TrimSpace(s))
		if ok {
			t.Time = parsed
			t.Valid = true
		}
		return nil
	}

	millis, err := strconv.ParseInt(string(trimmed), 10, 64)
	if err != nil {
		return nil
	}
	t.Time = time.UnixMilli(millis).UTC()
	t.Valid = true
	return nil
}

func parseTime(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z0700"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// decodeCount validates a count response. Unomi returns a bare number from
// /cxs/query/profile/count; some proxies wrap it as {"totalSize": n}.
func decodeCount(body []byte) (int64, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("empty count response")
	}

	var count int64
	if trimmed[0] == '{' {
		var wrapped struct {
			TotalSize *int64 `json:"totalSize"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return 0, fmt.Errorf("decode count response: %w", err)
		}
		if wrapped.TotalSize == nil {
			return 0, fmt.Errorf("count response missing totalSize")
		}
		count = *wrapped.TotalSize
	} else if err := json.Unmarshal(trimmed, &count); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}

	if count < 0 {
		return 0, fmt.Errorf("negative count %d", count)
	}
	return count, nil
}
