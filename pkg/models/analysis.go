// Package models contains shared data models used across the shelfscan codebase.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Confidence tiers for a recognized SKU.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// SKURecord is the canonical representation of one shelf item, regardless of
// which field names the vision model used in its raw reply.
type SKURecord struct {
	Brand string `json:"brand"`
	Name  string `json:"sku_name"`
	// Count is the number of visible facings. Zero is a valid measurement for
	// an empty slot; a present product defaults to 1.
	Count int     `json:"sku_count"`
	Price float64 `json:"sku_price"`
	// Position is a free-form shelf-zone label such as "Top Left".
	Position   string `json:"sku_position,omitempty"`
	Confidence string `json:"sku_confidence,omitempty"`
	// EmptySpaceEstimate is a 0-100 percentage. It is set only for empty-slot
	// entries; absence means the record describes a product, not a gap.
	EmptySpaceEstimate *int   `json:"empty_space_estimate,omitempty"`
	Color              string `json:"color,omitempty"`
	PackageSize        string `json:"package_size,omitempty"`
}

// ReportMetadata summarizes a structured shelf report.
type ReportMetadata struct {
	TotalItems           int     `json:"total_items"`
	OutOfStockPositions  int     `json:"out_of_stock_positions"`
	EmptySpacePercentage float64 `json:"empty_space_percentage"`
	ImageQuality         string  `json:"image_quality,omitempty"`
	AnalysisStatus       string  `json:"analysis_status,omitempty"`
}

// Shelf is one horizontal band of a structured report.
type Shelf struct {
	Position string      `json:"position"`
	Items    []SKURecord `json:"items"`
}

// ShelfReport is the structured result shape: per-shelf item groups plus
// summary metadata.
type ShelfReport struct {
	Metadata ReportMetadata `json:"metadata"`
	Shelves  []Shelf        `json:"shelves"`
}

// AnalysisResult is the persisted outcome of one image analysis. Two shapes are
// in circulation and both must survive a write/read round trip unchanged:
//
//   - flat: a bare JSON array of SKURecord (legacy)
//   - structured: a ShelfReport object with metadata and shelves
//
// Exactly one of Items or Report is populated.
type AnalysisResult struct {
	Items  []SKURecord
	Report *ShelfReport
}

// FlatResult wraps a flat record sequence.
func FlatResult(items []SKURecord) *AnalysisResult {
	if items == nil {
		items = []SKURecord{}
	}
	return &AnalysisResult{Items: items}
}

// StructuredResult wraps a shelf report.
func StructuredResult(report ShelfReport) *AnalysisResult {
	if report.Shelves == nil {
		report.Shelves = []Shelf{}
	}
	return &AnalysisResult{Report: &report}
}

// EmptyAnalysisResult returns the well-formed "no analysis available" value:
// zeroed metadata and no shelves. Callers receive this instead of nil so the
// absence of data never needs a special branch.
func EmptyAnalysisResult() *AnalysisResult {
	return &AnalysisResult{Report: &ShelfReport{Shelves: []Shelf{}}}
}

// Structured reports whether the result carries the structured shape.
func (r *AnalysisResult) Structured() bool { return r.Report != nil }

// Records returns every SKU record in the result regardless of shape.
func (r *AnalysisResult) Records() []SKURecord {
	if r == nil {
		return nil
	}
	if r.Report == nil {
		return r.Items
	}
	var all []SKURecord
	for _, shelf := range r.Report.Shelves {
		all = append(all, shelf.Items...)
	}
	return all
}

// MarshalJSON emits the result in its native shape: a bare array for the flat
// form, an object for the structured form.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	if r.Report != nil {
		return json.Marshal(r.Report)
	}
	items := r.Items
	if items == nil {
		items = []SKURecord{}
	}
	return json.Marshal(items)
}

// UnmarshalJSON accepts either persisted shape, keyed off the leading token.
func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = AnalysisResult{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var items []SKURecord
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decoding flat analysis result: %w", err)
		}
		*r = AnalysisResult{Items: items}
		return nil
	case '{':
		var report ShelfReport
		if err := json.Unmarshal(trimmed, &report); err != nil {
			return fmt.Errorf("decoding structured analysis result: %w", err)
		}
		*r = AnalysisResult{Report: &report}
		return nil
	default:
		return fmt.Errorf("analysis result must be a JSON array or object, got %q", trimmed[0])
	}
}

// IntPtr is a convenience for populating EmptySpaceEstimate.
func IntPtr(v int) *int { return &v }
