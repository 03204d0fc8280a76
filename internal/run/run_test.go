package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDBucketsToTenMinutes(t *testing.T) {
	ist, err := LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 03:47:59 UTC is 09:17:59 IST
	now := time.Date(2026, 10, 19, 3, 47, 59, 0, time.UTC)
	assert.Equal(t, "2026-10-19T09:10", ID(now, ist))

	// same bucket, same id
	assert.Equal(t, ID(now, ist), ID(now.Add(-7*time.Minute), ist))
	// next bucket
	assert.Equal(t, "2026-10-19T09:20", ID(now.Add(2*time.Minute+1*time.Second), ist))
}

func TestIDUsesZoneCalendarDate(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)

	// 20:00 UTC on the 18th is already the 19th in IST
	now := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	r := New(now, ist)

	assert.Equal(t, "2026-10-19T01:30", r.ID)
	assert.Equal(t, "2026-10-19", r.DateString())
	assert.Equal(t, 0, r.Date.Hour())
}

func TestNilLocationIsUTC(t *testing.T) {
	now := time.Date(2026, 1, 2, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-02T23:50", ID(now, nil))
}

func TestLoadLocationUnknown(t *testing.T) {
	_, err := LoadLocation("Mars/Olympus_Mons")
	assert.Error(t, err)
}
