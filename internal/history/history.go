// Package history keeps the sliding seven-day window of test
// execution records, one JSON document per module on disk.
package history

import (
	"sort"
	"time"

	"github.com/Tharunreddy-N/JnP-Automation/internal/logparse"
)

// RetentionWindow is how far back records are kept relative to the
// time of the merge.
const RetentionWindow = 7 * 24 * time.Hour

// Entry is one persisted execution record.
type Entry struct {
	TestName    string          `json:"test_name"`
	Status      logparse.Status `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	RunningTime string          `json:"running_time,omitempty"`
}

// Key returns the dedupe identity of the entry.
func (e Entry) Key() string {
	return e.TestName + "@" + e.Timestamp.UTC().Format(time.RFC3339)
}

// Document is the on-disk shape of one module's history.
type Document struct {
	Module    string    `json:"module"`
	UpdatedAt time.Time `json:"updated_at"`
	Entries   []Entry   `json:"entries"`
}

// MergeResult summarizes what one merge pass changed.
type MergeResult struct {
	Added   int            `json:"added"`
	Updated int            `json:"updated"`
	Pruned  int            `json:"pruned"`
	PerTest map[string]int `json:"per_test,omitempty"`
}

// merge folds parsed records into doc, deduping on (test name,
// timestamp). A record whose key already exists replaces the stored
// entry only when its status or running time differ.
func merge(doc *Document, records []logparse.Record, now time.Time) MergeResult {
	res := MergeResult{PerTest: make(map[string]int)}

	index := make(map[string]int, len(doc.Entries))
	for i, e := range doc.Entries {
		index[e.Key()] = i
	}

	for _, rec := range records {
		e := Entry{
			TestName:    rec.TestName,
			Status:      rec.Status,
			Timestamp:   rec.Timestamp,
			RunningTime: rec.RunningTime,
		}
		if i, ok := index[e.Key()]; ok {
			prev := doc.Entries[i]
			if prev.Status != e.Status || prev.RunningTime != e.RunningTime {
				doc.Entries[i] = e
				res.Updated++
			}
			continue
		}
		index[e.Key()] = len(doc.Entries)
		doc.Entries = append(doc.Entries, e)
		res.Added++
		res.PerTest[e.TestName]++
	}

	res.Pruned = prune(doc, now)

	sort.SliceStable(doc.Entries, func(i, j int) bool {
		if !doc.Entries[i].Timestamp.Equal(doc.Entries[j].Timestamp) {
			return doc.Entries[i].Timestamp.Before(doc.Entries[j].Timestamp)
		}
		return doc.Entries[i].TestName < doc.Entries[j].TestName
	})
	doc.UpdatedAt = now
	return res
}

// prune drops entries older than the retention window, measured from
// the merge's call time.
func prune(doc *Document, now time.Time) int {
	if len(doc.Entries) == 0 {
		return 0
	}
	cutoff := now.Add(-RetentionWindow)
	kept := doc.Entries[:0]
	dropped := 0
	for _, e := range doc.Entries {
		if e.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	doc.Entries = kept
	return dropped
}
