package run

import (
	"fmt"
	"time"
)

// BucketMinutes is the width of the time bucket a run id is derived from.
// Executions started inside the same bucket share one run id.
const BucketMinutes = 10

const (
	idLayout   = "2006-01-02T15:04"
	dateLayout = "2006-01-02"
)

// Run identifies one execution of the pipeline
type Run struct {
	ID   string
	Date time.Time
}

// ID returns the run id for now in loc: the start of the enclosing
// ten-minute bucket formatted as 2006-01-02T15:04.
func ID(now time.Time, loc *time.Location) string {
	return bucketStart(now, loc).Format(idLayout)
}

// New creates the Run for an execution starting at now
func New(now time.Time, loc *time.Location) Run {
	local := now.In(zone(loc))
	return Run{
		ID:   ID(now, loc),
		Date: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()),
	}
}

// DateString returns the run date as YYYY-MM-DD
func (r Run) DateString() string {
	return r.Date.Format(dateLayout)
}

func (r Run) String() string {
	return fmt.Sprintf("run %s (%s)", r.ID, r.DateString())
}

// LoadLocation loads a zone by name, falling back to a fixed offset for the
// default Asia/Kolkata zone when tzdata is missing from the host.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == "Asia/Kolkata" {
		return time.FixedZone("IST", 5*3600+30*60), nil
	}
	return nil, fmt.Errorf("load time zone %q: %w", name, err)
}

func bucketStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(zone(loc))
	minute := local.Minute() / BucketMinutes * BucketMinutes
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 0, 0, local.Location())
}

func zone(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
