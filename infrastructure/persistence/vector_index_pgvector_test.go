package persistence

import (
	"testing"

	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/stretchr/testify/assert"
)

func TestPgQuerySettings(t *testing.T) {
	tests := []struct {
		name    string
		topK    int
		filters search.Filters
		want    []string
	}{
		{"unfiltered small topK", 10, search.NewFilters(), []string{"SET LOCAL hnsw.ef_search = 40"}},
		{"unfiltered large topK", 500, search.NewFilters(), []string{"SET LOCAL hnsw.ef_search = 500"}},
		{"region filter scans exactly", 10, search.NewFilters(search.WithRegions("A")), []string{"SET LOCAL enable_indexscan = off"}},
		{"overlap filter scans exactly", 10, search.NewFilters(search.WithCertifications("organic")), []string{"SET LOCAL enable_indexscan = off"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pgQuerySettings(tt.topK, tt.filters))
		})
	}
}
