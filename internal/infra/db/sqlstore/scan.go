package sqlstore

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout is fixed width so text timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in UTC with a fixed-width layout.
func FormatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// nullTime scans a timestamp regardless of how the driver hands it back.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(v any) error {
	switch t := v.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = t.UTC(), true
		return nil
	case string:
		return n.parse(t)
	case []byte:
		return n.parse(string(t))
	case int64:
		n.Time, n.Valid = time.Unix(0, t).UTC(), true
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", v)
}

func (n *nullTime) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func nullString(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}
