package report

import "encoding/json"

// Value is a numeric report value with its units.
type Value struct {
	Value float64 `json:"value"`
	Units string  `json:"units,omitempty"`
}

// Total holds the aggregated totals of a report.
type Total struct {
	Cost           *Value `json:"cost,omitempty"`
	Infrastructure *Value `json:"infrastructure,omitempty"`
	Supplementary  *Value `json:"supplementary,omitempty"`
	Usage          *Value `json:"usage,omitempty"`
	Count          *Value `json:"count,omitempty"`
	Request        *Value `json:"request,omitempty"`
	Limit          *Value `json:"limit,omitempty"`
	Capacity       *Value `json:"capacity,omitempty"`
}

// Meta is the report metadata echoed back by the API.
type Meta struct {
	Count   int            `json:"count,omitempty"`
	Delta   map[string]any `json:"delta,omitempty"`
	Filter  map[string]any `json:"filter,omitempty"`
	GroupBy map[string]any `json:"group_by,omitempty"`
	OrderBy map[string]any `json:"order_by,omitempty"`
	Total   *Total         `json:"total,omitempty"`
}

// Links are the pagination links of a report.
type Links struct {
	First    string `json:"first,omitempty"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
	Last     string `json:"last,omitempty"`
}

// Report is a server-computed aggregation for one category and query.
// Data is kept as raw JSON: its shape depends on the provider and group-by.
// A Report is never modified after it is stored.
type Report struct {
	Meta  Meta            `json:"meta"`
	Links *Links          `json:"links,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TotalCost returns the report's total cost, or nil when absent.
func (r *Report) TotalCost() *Value {
	if r == nil || r.Meta.Total == nil {
		return nil
	}
	return r.Meta.Total.Cost
}
