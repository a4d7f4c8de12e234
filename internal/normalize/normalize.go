// Package normalize converts the model's loosely structured shelf output into
// the canonical SKU schema. Vision replies use inconsistent field names and
// types across runs, so every field is resolved through an alias table and
// coerced defensively.
package normalize

import (
	"encoding/json"

	"github.com/openshelf/shelfscan/pkg/models"
)

// Result normalizes a raw extracted JSON payload into an AnalysisResult.
// The payload may be a flat array of SKU objects or a structured report with
// metadata and per-shelf item groups; both shapes are preserved on output.
// Rows that are not JSON objects are dropped. A nil or unusable payload
// yields an empty flat result rather than an error.
func Result(raw json.RawMessage) *models.AnalysisResult {
	switch firstByte(raw) {
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return models.FlatResult(nil)
		}
		return models.FlatResult(normalizeRows(rows))
	case '{':
		var report rawReport
		if err := json.Unmarshal(raw, &report); err != nil {
			return models.FlatResult(nil)
		}
		if report.Shelves == nil && report.Metadata == nil {
			// An object that is neither shape is treated as a single SKU row.
			if rec, ok := normalizeRow(raw); ok {
				return models.FlatResult([]models.SKURecord{rec})
			}
			return models.FlatResult(nil)
		}
		return normalizeReport(report)
	default:
		return models.FlatResult(nil)
	}
}

// Records normalizes an already-decoded AnalysisResult in place. Applying it
// to previously normalized data is a no-op, so stored results can be passed
// through the same path as fresh model output.
func Records(result *models.AnalysisResult) *models.AnalysisResult {
	if result == nil {
		return models.EmptyAnalysisResult()
	}
	if result.Report != nil {
		for i := range result.Report.Shelves {
			shelf := &result.Report.Shelves[i]
			for j := range shelf.Items {
				shelf.Items[j] = normalizeRecord(shelf.Items[j])
			}
		}
		return result
	}
	for i := range result.Items {
		result.Items[i] = normalizeRecord(result.Items[i])
	}
	return result
}

type rawReport struct {
	Metadata *rawMetadata `json:"metadata"`
	Shelves  []rawShelf   `json:"shelves"`
}

type rawMetadata struct {
	TotalItems           any    `json:"total_items"`
	OutOfStockPositions  any    `json:"out_of_stock_positions"`
	EmptySpacePercentage any    `json:"empty_space_percentage"`
	ImageQuality         string `json:"image_quality"`
	AnalysisStatus       string `json:"analysis_status"`
}

type rawShelf struct {
	Position any               `json:"position"`
	Items    []json.RawMessage `json:"items"`
}

func normalizeReport(report rawReport) *models.AnalysisResult {
	shelves := make([]models.Shelf, 0, len(report.Shelves))
	total := 0
	for _, s := range report.Shelves {
		items := normalizeRows(s.Items)
		total += len(items)
		shelves = append(shelves, models.Shelf{
			Position: asString(s.Position),
			Items:    items,
		})
	}

	meta := models.ReportMetadata{
		TotalItems:     total,
		AnalysisStatus: "complete",
	}
	if m := report.Metadata; m != nil {
		if v, ok := asInt(m.TotalItems); ok {
			meta.TotalItems = v
		}
		if v, ok := asInt(m.OutOfStockPositions); ok {
			meta.OutOfStockPositions = v
		}
		if v, ok := asFloat(m.EmptySpacePercentage); ok {
			meta.EmptySpacePercentage = v
		}
		meta.ImageQuality = m.ImageQuality
		if m.AnalysisStatus != "" {
			meta.AnalysisStatus = m.AnalysisStatus
		}
	}

	return models.StructuredResult(models.ShelfReport{Metadata: meta, Shelves: shelves})
}

func normalizeRows(rows []json.RawMessage) []models.SKURecord {
	records := make([]models.SKURecord, 0, len(rows))
	for _, row := range rows {
		if rec, ok := normalizeRow(row); ok {
			records = append(records, rec)
		}
	}
	return records
}

func normalizeRow(raw json.RawMessage) (models.SKURecord, bool) {
	if firstByte(raw) != '{' {
		return models.SKURecord{}, false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.SKURecord{}, false
	}

	outOfStock := asBool(lookup(fields, outOfStockAliases))

	rec := models.SKURecord{
		Brand:       asString(lookup(fields, brandAliases)),
		Name:        asString(lookup(fields, nameAliases)),
		Count:       parseCount(lookup(fields, countAliases), outOfStock),
		Price:       parsePrice(lookup(fields, priceAliases)),
		Position:    asString(lookup(fields, positionAliases)),
		Color:       asString(lookup(fields, colorAliases)),
		PackageSize: asString(lookup(fields, packageSizeAliases)),
	}
	rec.Confidence = resolveConfidence(fields)
	if outOfStock {
		rec.EmptySpaceEstimate = models.IntPtr(100)
	} else if v, ok := asInt(lookup(fields, emptySpaceAliases)); ok {
		// A present estimate marks an empty slot even without the boolean flag,
		// so a canonical record survives re-normalization intact.
		rec.EmptySpaceEstimate = models.IntPtr(v)
	}
	return rec, true
}

// normalizeRecord re-applies coercions to a canonical record. All fields are
// already typed, so only the derived defaults need enforcement.
func normalizeRecord(rec models.SKURecord) models.SKURecord {
	rec.Price = clampPrice(rec.Price)
	if rec.Confidence != "" {
		rec.Confidence = canonicalTier(rec.Confidence)
	}
	if rec.Count < 0 {
		rec.Count = 0
	}
	return rec
}
