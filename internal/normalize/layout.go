package normalize

import "strings"

// Layout maps record fields onto cell positions. A negative index marks a
// column the table does not have.
type Layout struct {
	Symbol         int
	Price          int
	ReferencePrice int
	ReferenceTime  int
	Deviation      int
	Range          int
}

// DefaultLayout is the column order of the opening range breakout table
var DefaultLayout = Layout{
	Symbol:         0,
	Price:          1,
	ReferencePrice: 3,
	ReferenceTime:  4,
	Deviation:      5,
	Range:          6,
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}
