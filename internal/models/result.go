package models

// FacetValue is one distinct field value with its hit count.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FacetField holds facet values for one facet-eligible field, in the order
// the index returned them. The order is stable only within a single query
// execution.
type FacetField struct {
	Field  string       `json:"field"`
	Values []FacetValue `json:"values"`
}

// SearchResponse is the result of a chart search: typed items in index
// relevance order plus facet counts computed from the same query execution.
type SearchResponse struct {
	Items  []ChartListItem `json:"items"`
	Facets []FacetField    `json:"facets"`
	// Total is the index hit total; it can exceed len(Items) when limited.
	Total int `json:"total"`
	// Skipped counts hits dropped because their document type was not
	// recognized (partial results rather than failure).
	Skipped   int    `json:"skipped,omitempty"`
	Phrase    string `json:"phrase"`
	QueryTime int64  `json:"query_time_ms"`
}
