package normalize

import (
	"strconv"
	"strings"

	"sjsage522/orbscreener/helpers"
)

// SecondaryIndicatorMarker marks labels of the combined ORB+PRB views
const SecondaryIndicatorMarker = "PRB"

// ParseLabel derives the range duration in minutes and the secondary
// indicator flag from a tab label: "ORB+PRB 15" gives 15 and true.
// A label without digits gives duration 0.
func ParseLabel(label string) (duration int, secondary bool) {
	duration, _ = strconv.Atoi(helpers.Digits(label))
	secondary = strings.Contains(strings.ToUpper(label), SecondaryIndicatorMarker)
	return duration, secondary
}
