package parsing

import (
	"log/slog"
	"math"
	"regexp"
	"strings"
)

var phraseSeparator = regexp.MustCompile(`(?i)[,.;\n]|\s+и\s+|\s+and\s+|\s*&\s*`)

// ParsedEntry is one priced vehicle record
type ParsedEntry struct {
	Plate        string   `json:"plate"`
	Description  string   `json:"description"`
	Area         float64  `json:"area"`       // m², two decimals
	Cost         int      `json:"cost"`       // material cost incl. flat fees
	LaborCost    float64  `json:"labor_cost"` // sum of matched labor fees
	Date         string   `json:"date"`
	Unrecognized []string `json:"unrecognized,omitempty"`
}

// Resolver prices raw entries against a catalog
type Resolver struct {
	sink UnrecognizedSink
}

// NewResolver creates a Resolver. A nil sink discards unrecognized phrases.
func NewResolver(sink UnrecognizedSink) *Resolver {
	if sink == nil {
		sink = NopSink{}
	}
	return &Resolver{sink: sink}
}

// SplitPhrases splits a description into normalized service phrases
func SplitPhrases(description string) []string {
	var phrases []string
	for _, part := range phraseSeparator.Split(description, -1) {
		if p := Normalize(part); p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}

// Resolve looks every phrase of the entry up in both fee tables. Phrases
// found in neither are recorded with the sink and priced at zero; resolution
// itself never fails.
func (r *Resolver) Resolve(raw RawEntry, cat *Catalog) ParsedEntry {
	var (
		totalArea  float64
		totalLabor float64
		unknown    []string
	)

	for _, phrase := range SplitPhrases(raw.Description) {
		labor, hasLabor := cat.Labor[phrase]
		area, hasArea := cat.Elements[phrase]
		slog.Debug("Resolved phrase", "plate", raw.Plate, "phrase", phrase, "labor", labor, "area", area)

		if !hasLabor && !hasArea {
			unknown = append(unknown, phrase)
			r.sink.Record(raw.Date, raw.Plate, phrase)
			continue
		}
		totalLabor += labor
		totalArea += area
	}

	cost := int(math.Round(totalArea*cat.PricePerArea)) + fixedCost(raw.Description, cat.Fixed)

	return ParsedEntry{
		Plate:        raw.Plate,
		Description:  strings.TrimSpace(raw.Description),
		Area:         math.Round(totalArea*100) / 100,
		Cost:         cost,
		LaborCost:    totalLabor,
		Date:         raw.Date,
		Unrecognized: unknown,
	}
}

// fixedCost sums the flat fees whose trigger occurs anywhere in the
// description, independent of phrase splitting.
func fixedCost(description string, fixed map[string]float64) int {
	if len(fixed) == 0 {
		return 0
	}
	desc := Normalize(description)
	var sum float64
	for trigger, fee := range fixed {
		if trigger != "" && strings.Contains(desc, trigger) {
			sum += fee
		}
	}
	return int(math.Round(sum))
}
