package parsing

import (
	"fmt"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Result is the outcome of parsing one report message
type Result struct {
	Entries []ParsedEntry `json:"entries"`
	// Date is the last date marker in the text, or today. Entries carry their
	// own dates, which can differ when the text has several markers.
	Date string `json:"date"`
}

// Parser turns free-form report text into priced entries
type Parser struct {
	catalog   CatalogSource
	segmenter *Segmenter
	resolver  *Resolver
}

// NewParser creates a Parser with the default plate matcher and wall clock
func NewParser(catalog CatalogSource, sink UnrecognizedSink) *Parser {
	return NewParserWithDeps(catalog, sink, nil, nil)
}

// NewParserWithDeps creates a Parser with a custom plate matcher and time source
func NewParserWithDeps(catalog CatalogSource, sink UnrecognizedSink, matcher PlateMatcher, timeSrc TimeSource) *Parser {
	return &Parser{
		catalog:   catalog,
		segmenter: NewSegmenter(matcher, timeSrc),
		resolver:  NewResolver(sink),
	}
}

// Parse loads the catalog, segments text and prices every entry. Only a
// catalog failure is returned as an error; text without plates yields an
// empty entry list.
func (p *Parser) Parse(text string) (*Result, error) {
	cat, err := p.catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}

	raws, date := p.segmenter.Segment(text)
	entries := make([]ParsedEntry, 0, len(raws))
	for _, raw := range raws {
		entries = append(entries, p.resolver.Resolve(raw, cat))
	}

	return &Result{Entries: entries, Date: date}, nil
}
