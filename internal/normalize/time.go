package normalize

import (
	"strings"
	"time"

	"sjsage522/orbscreener/internal/model"
)

const clockLayout = "3:04 PM"

// ParseClockTime parses a 12-hour time of day such as "09:15 AM". The meridiem
// is required, so a 24-hour "14:45" is invalid. Blank or malformed text gives
// an invalid ClockTime, never an error.
func ParseClockTime(text string) model.ClockTime {
	s := strings.ToUpper(strings.Join(strings.Fields(text), " "))
	if s == "" {
		return model.ClockTime{}
	}
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return model.ClockTime{}
	}
	return model.NewClockTime(t.Hour(), t.Minute())
}
