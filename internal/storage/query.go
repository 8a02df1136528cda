package storage

import (
	"fmt"
	"sort"
)

// MatchWhere reports whether a record satisfies every equality clause.
func MatchWhere(rec Record, where map[string]any) bool {
	for k, want := range where {
		got, ok := rec[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// ApplyOrder sorts records by the query's OrderBy field. RFC3339 timestamps
// sort correctly under plain string comparison.
func ApplyOrder(recs []Record, q Query) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		a := fmt.Sprintf("%v", recs[i][q.OrderBy])
		b := fmt.Sprintf("%v", recs[j][q.OrderBy])
		if q.Descending {
			return a > b
		}
		return a < b
	})
}

// ApplyWindow applies the query's offset and limit.
func ApplyWindow(recs []Record, q Query) []Record {
	if q.Offset > 0 {
		if q.Offset >= len(recs) {
			return nil
		}
		recs = recs[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(recs) {
		recs = recs[:q.Limit]
	}
	return recs
}
