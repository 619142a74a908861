package batch

import "github.com/shpitdev/review-insight-pipeline/internal/analyzer"

// Aggregate tallies analyzed rows by sentiment, plus failures. Skipped rows are not counted.
type Aggregate struct {
	Positive int `json:"POSITIVE"`
	Negative int `json:"NEGATIVE"`
	Neutral  int `json:"NEUTRAL"`
	Failed   int `json:"FAILED"`
}

func (a *Aggregate) record(o Outcome) {
	switch o.Status {
	case StatusFailed:
		a.Failed++
	case StatusSuccess:
		switch o.Label {
		case analyzer.Positive:
			a.Positive++
		case analyzer.Negative:
			a.Negative++
		case analyzer.Neutral:
			a.Neutral++
		}
	}
}

// Total is the number of rows that reached the analyzer.
func (a Aggregate) Total() int {
	return a.Positive + a.Negative + a.Neutral + a.Failed
}

// Count returns the tally for one bucket: a sentiment label or "FAILED".
func (a Aggregate) Count(bucket string) int {
	switch bucket {
	case string(analyzer.Positive):
		return a.Positive
	case string(analyzer.Negative):
		return a.Negative
	case string(analyzer.Neutral):
		return a.Neutral
	case "FAILED":
		return a.Failed
	}
	return 0
}

// Buckets lists the aggregate buckets in display order.
var Buckets = []string{string(analyzer.Positive), string(analyzer.Negative), string(analyzer.Neutral), "FAILED"}
