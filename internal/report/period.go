package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// ErrInvalidPeriod is returned when a period is neither YYYY-MM-DD nor YYYY-MM
var ErrInvalidPeriod = errors.New("invalid period: use YYYY-MM-DD or YYYY-MM")

// Period is an inclusive date range
type Period struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ParsePeriod accepts a single day or a whole month
func ParsePeriod(value string) (Period, error) {
	value = strings.TrimSpace(value)

	if day, err := time.Parse(dateLayout, value); err == nil {
		d := day.Format(dateLayout)
		return Period{From: d, To: d}, nil
	}

	if month, err := time.Parse(monthLayout, value); err == nil {
		last := month.AddDate(0, 1, -1)
		return Period{From: month.Format(dateLayout), To: last.Format(dateLayout)}, nil
	}

	return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, value)
}

// archiveLabel names files exported for the period: "2026_07" for a month,
// "2026-07-02" for a day and "from_to" otherwise.
func (p Period) archiveLabel() string {
	if p.From == p.To {
		return p.From
	}
	from, errFrom := time.Parse(dateLayout, p.From)
	to, errTo := time.Parse(dateLayout, p.To)
	if errFrom == nil && errTo == nil && from.Day() == 1 && from.AddDate(0, 1, -1).Equal(to) {
		return fmt.Sprintf("%d_%02d", from.Year(), int(from.Month()))
	}
	return p.From + "_" + p.To
}
