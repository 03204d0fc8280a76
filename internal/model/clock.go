package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClockTime is a nullable time of day with minute precision
type ClockTime struct {
	Hour   int
	Minute int
	Valid  bool
}

// NewClockTime returns a valid ClockTime
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime{Hour: hour, Minute: minute, Valid: true}
}

// String formats the time as HH:MM, or "" when null
func (c ClockTime) String() string {
	if !c.Valid {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Value implements driver.Valuer
func (c ClockTime) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	return fmt.Sprintf("%02d:%02d:00", c.Hour, c.Minute), nil
}

// Scan implements sql.Scanner. Drivers hand back TIME columns as text or as time.Time.
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = ClockTime{}
		return nil
	case time.Time:
		*c = NewClockTime(v.Hour(), v.Minute())
		return nil
	case []byte:
		return c.parse(string(v))
	case string:
		return c.parse(v)
	default:
		return fmt.Errorf("clock time: unsupported source type %T", src)
	}
}

func (c *ClockTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*c = ClockTime{}
		return nil
	}
	// "15:04:05.000000" from postgres, "15:04:05" or "15:04" from sqlite
	if len(s) > 8 {
		s = s[:8]
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			*c = NewClockTime(t.Hour(), t.Minute())
			return nil
		}
	}
	return fmt.Errorf("clock time: cannot parse %q", s)
}

// MarshalJSON encodes a null time as JSON null
func (c ClockTime) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes HH:MM or null
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = ClockTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return c.parse(s)
}
