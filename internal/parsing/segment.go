package parsing

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO date format used for report and entry dates
const DateLayout = "2006-01-02"

var dateLineRegex = regexp.MustCompile(`^\s*(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?\s*$`)

// RawEntry is one plate with its accumulated description, before pricing
type RawEntry struct {
	Plate       string
	Description string
	Date        string
}

// Segmenter splits report text into plate-anchored entries
type Segmenter struct {
	matcher    PlateMatcher
	timeSource TimeSource
}

// NewSegmenter creates a Segmenter. A nil matcher means RegexpPlateMatcher and
// a nil time source means the wall clock.
func NewSegmenter(matcher PlateMatcher, timeSource TimeSource) *Segmenter {
	if matcher == nil {
		matcher = RegexpPlateMatcher{}
	}
	if timeSource == nil {
		timeSource = &defaultTimeSource{}
	}
	return &Segmenter{matcher: matcher, timeSource: timeSource}
}

// segmentState is the per-call accumulator
type segmentState struct {
	date        string
	plate       string
	description string
	entries     []RawEntry
}

// flush closes the open entry. Entries closed before any date marker get
// fallbackDate.
func (st *segmentState) flush(fallbackDate string) {
	if st.plate == "" || strings.TrimSpace(st.description) == "" {
		return
	}
	date := st.date
	if date == "" {
		date = fallbackDate
	}
	st.entries = append(st.entries, RawEntry{
		Plate:       st.plate,
		Description: st.description,
		Date:        date,
	})
}

// Segment walks text line by line. Date lines (d.m or d.m.yyyy) set the date
// for entries flushed afterwards; a line holding a plate closes the previous
// entry and opens a new one; any other line extends the open description.
// The returned date is the last date marker seen, or today when there was none.
func (s *Segmenter) Segment(text string) ([]RawEntry, string) {
	now := s.timeSource.Now()
	today := now.Format(DateLayout)

	st := &segmentState{}

	for _, line := range splitLines(strings.TrimSpace(text)) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if date, ok := parseDateLine(line, now.Year()); ok {
			st.date = date
			continue
		}

		if plate, rest, ok := s.matcher.Match(line); ok {
			st.flush(today)
			st.plate = plate
			st.description = rest
			continue
		}

		// Lines before the first plate have nowhere to go.
		if st.plate == "" {
			continue
		}
		st.description += " " + line
	}
	st.flush(today)

	if st.date == "" {
		return st.entries, today
	}
	return st.entries, st.date
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// parseDateLine recognizes d.m and d.m.yyyy lines. Values that are not a
// real calendar date are rejected so the line is treated as text.
func parseDateLine(line string, currentYear int) (string, bool) {
	m := dateLineRegex.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := currentYear
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return "", false
	}
	return t.Format(DateLayout), true
}
