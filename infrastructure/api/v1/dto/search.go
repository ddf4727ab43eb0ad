// Package dto holds the JSON request and response bodies of the v1 API.
package dto

// SearchFilters restricts results by facet. Region and Regions are merged.
type SearchFilters struct {
	Region         string   `json:"region,omitempty"`
	Regions        []string `json:"regions,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	PrimaryCrops   []string `json:"primary_crops,omitempty"`
}

// SearchRequest is the body of POST /search. The flat filter_* fields are
// the legacy single-value filters and are merged into Filters.
type SearchRequest struct {
	Query   string         `json:"query"`
	Filters *SearchFilters `json:"filters,omitempty"`
	TopK    *int           `json:"top_k,omitempty"`

	FilterRegion        string `json:"filter_region,omitempty"`
	FilterCertification string `json:"filter_certification,omitempty"`
	FilterPrimaryCrop   string `json:"filter_primary_crop,omitempty"`
}

// Metadata is the facet metadata of a result.
type Metadata struct {
	Region         string   `json:"region,omitempty"`
	Certifications []string `json:"certifications"`
	PrimaryCrops   []string `json:"primary_crops"`
	ProducerID     string   `json:"producer_id,omitempty"`
}

// SearchResult is one ranked producer.
type SearchResult struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// SearchResponse is the body returned by POST /search.
type SearchResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Results []SearchResult `json:"results"`
}
