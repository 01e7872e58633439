package search

import (
	"fmt"
	"strings"
	"time"

	"vellum/internal/metadataindex"
)

// DateRange bounds a parsed "after:"/"before:" clause.
type DateRange struct {
	After  *time.Time
	Before *time.Time
}

// ParsedQuery is the structured result of parsing a Query DSL string of the
// form: free text +tag:x -topic:y/z after:2025-01-01 score>0.5
type ParsedQuery struct {
	Text            string
	MetadataFilters []metadataindex.Filter
	TopicFilters    []string
	DateRange       *DateRange
	MinScore        float64
}

// ParseQuery splits a query string into free text and structured clauses.
// Recognized clause prefixes: "+tag:", "-tag:" (negated), "+topic:",
// "-topic:", "after:", "before:", "score>".
func ParseQuery(raw string) ParsedQuery {
	var textTokens []string
	pq := ParsedQuery{}

	for _, tok := range strings.Fields(raw) {
		switch {
		case strings.HasPrefix(tok, "+tag:"):
			pq.MetadataFilters = append(pq.MetadataFilters, metadataindex.Filter{
				Key: "tags", Mode: metadataindex.Contains, Value: strings.TrimPrefix(tok, "+tag:"),
			})
		case strings.HasPrefix(tok, "-tag:"):
			pq.MetadataFilters = append(pq.MetadataFilters, metadataindex.Filter{
				Key: "tags", Mode: metadataindex.Neq, Value: strings.TrimPrefix(tok, "-tag:"),
			})
		case strings.HasPrefix(tok, "+topic:"):
			pq.TopicFilters = append(pq.TopicFilters, strings.TrimPrefix(tok, "+topic:"))
		case strings.HasPrefix(tok, "-topic:"):
			excluded := strings.TrimPrefix(tok, "-topic:")
			pq.MetadataFilters = append(pq.MetadataFilters, metadataindex.Filter{
				Key: "topic", Mode: metadataindex.Neq, Value: excluded,
			})
		case strings.HasPrefix(tok, "after:"):
			if t, err := time.Parse("2006-01-02", strings.TrimPrefix(tok, "after:")); err == nil {
				if pq.DateRange == nil {
					pq.DateRange = &DateRange{}
				}
				pq.DateRange.After = &t
			}
		case strings.HasPrefix(tok, "before:"):
			if t, err := time.Parse("2006-01-02", strings.TrimPrefix(tok, "before:")); err == nil {
				if pq.DateRange == nil {
					pq.DateRange = &DateRange{}
				}
				pq.DateRange.Before = &t
			}
		case strings.HasPrefix(tok, "score>"):
			if f, ok := parseFloatLoose(strings.TrimPrefix(tok, "score>")); ok {
				pq.MinScore = f
			}
		default:
			textTokens = append(textTokens, tok)
		}
	}

	pq.Text = strings.Join(textTokens, " ")
	return pq
}

func parseFloatLoose(s string) (float64, bool) {
	var f float64
	n, err := fmt.Sscan(s, &f)
	return f, err == nil && n == 1
}
