// Package stats derives contributor rankings, totals and a daily time
// series from annotation records. Every function accepts an empty input and
// returns a zero result.
package stats

import (
	"sort"
	"time"

	"moorecollect/core/ledger"
	"moorecollect/logger"
)

// ContributorTotal is one row of the ranking.
type ContributorTotal struct {
	User    string  `json:"user"`
	Seconds float64 `json:"seconds"`
	Count   int     `json:"count"`
}

// Minutes returns the contribution in minutes.
func (c ContributorTotal) Minutes() float64 {
	return c.Seconds / 60
}

// DailyCount is the number of annotations created on one calendar date.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}

// Summary bundles every figure the dashboards show.
type Summary struct {
	Annotations    int                `json:"annotations"`
	Contributors   int                `json:"contributors"`
	TotalMinutes   float64            `json:"totalMinutes"`
	AverageMinutes float64            `json:"averageMinutes"`
	Ranking        []ContributorTotal `json:"ranking"`
	Top            []ContributorTotal `json:"top"`
	Daily          []DailyCount       `json:"daily"`
}

// TopN is how many contributors the share chart shows.
const TopN = 10

// TotalSeconds sums every record's duration.
func TotalSeconds(records []ledger.Annotation) float64 {
	var total float64
	for _, r := range records {
		total += r.Duration
	}
	return total
}

// TotalDuration is TotalSeconds in minutes.
func TotalDuration(records []ledger.Annotation) float64 {
	return TotalSeconds(records) / 60
}

// AverageAnnotationLength is the mean record duration in minutes.
func AverageAnnotationLength(records []ledger.Annotation) float64 {
	if len(records) == 0 {
		return 0
	}
	return TotalSeconds(records) / float64(len(records)) / 60
}

// ContributorRanking sums durations per contributor, highest first. Ties
// keep the order in which contributors were first seen. Records without a
// user are left out.
func ContributorRanking(records []ledger.Annotation) []ContributorTotal {
	index := make(map[string]int)
	ranking := make([]ContributorTotal, 0)
	for _, r := range records {
		if r.User == "" {
			continue
		}
		i, ok := index[r.User]
		if !ok {
			i = len(ranking)
			index[r.User] = i
			ranking = append(ranking, ContributorTotal{User: r.User})
		}
		ranking[i].Seconds += r.Duration
		ranking[i].Count++
	}
	sort.SliceStable(ranking, func(a, b int) bool {
		return ranking[a].Seconds > ranking[b].Seconds
	})
	return ranking
}

// TopContributors returns at most n leading rows of ranking.
func TopContributors(ranking []ContributorTotal, n int) []ContributorTotal {
	if n < 0 {
		n = 0
	}
	return ranking[:min(n, len(ranking))]
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO-8601 forms found in
// older records.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ContributionsOverTime counts annotations per creation date, oldest first.
// Records with a missing or unparseable created_at are skipped and logged.
func ContributionsOverTime(records []ledger.Annotation) []DailyCount {
	counts := make(map[string]int)
	for _, r := range records {
		if r.CreatedAt == "" {
			continue
		}
		t, ok := ParseTimestamp(r.CreatedAt)
		if !ok {
			logger.Warn("skipping unparseable created_at",
				logger.String("created_at", r.CreatedAt),
				logger.String("audio_path", r.AudioPath))
			continue
		}
		counts[t.Format(time.DateOnly)]++
	}

	out := make([]DailyCount, 0, len(counts))
	for date, n := range counts {
		out = append(out, DailyCount{Date: date, Count: n})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date < out[b].Date })
	return out
}

// Summarize computes every figure in one pass over the records.
func Summarize(records []ledger.Annotation) Summary {
	ranking := ContributorRanking(records)
	return Summary{
		Annotations:    len(records),
		Contributors:   len(ranking),
		TotalMinutes:   TotalDuration(records),
		AverageMinutes: AverageAnnotationLength(records),
		Ranking:        ranking,
		Top:            TopContributors(ranking, TopN),
		Daily:          ContributionsOverTime(records),
	}
}
