// Package vectorstore holds the similarity indexes chunks are stored in.
package vectorstore

import (
	"sort"

	"ragchat/internal/domain"
)

// SortResults orders results by descending score. Equal scores keep the
// order the chunks were inserted in, so a fixed index answers a fixed query
// identically every time.
func SortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}
