package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalysisResultFlatShapeRoundTrip(t *testing.T) {
	result := FlatResult([]SKURecord{
		{Brand: "Coca-Cola", Name: "Coke Zero", Count: 4, Price: 1.49, Position: "Top Left", Confidence: ConfidenceHigh},
		{Name: "Empty Slot", EmptySpaceEstimate: IntPtr(100)},
	})

	data, err := json.Marshal(result)
	require.NoError(t, err)
	// The flat shape persists as a bare array, not a wrapper object.
	assert.Equal(t, byte('['), data[0])

	var got AnalysisResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, result.Items, got.Items)
	assert.Nil(t, got.Report)
}

func TestAnalysisResultStructuredShapeRoundTrip(t *testing.T) {
	result := StructuredResult(ShelfReport{
		Metadata: ReportMetadata{TotalItems: 1, ImageQuality: "good", AnalysisStatus: "complete"},
		Shelves:  []Shelf{{Position: "top", Items: []SKURecord{{Name: "A", Count: 1}}}},
	})

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), data[0])

	var got AnalysisResult
	require.NoError(t, json.Unmarshal(data, &got))
	require.NotNil(t, got.Report)
	assert.Equal(t, *result.Report, *got.Report)
	assert.Nil(t, got.Items)
}

func TestAnalysisResultEmptySpaceOmittedWhenAbsent(t *testing.T) {
	data, err := json.Marshal(FlatResult([]SKURecord{{Name: "Product", Count: 1}}))
	require.NoError(t, err)

	// Absence of empty_space_estimate is meaningful: "no data", not zero.
	assert.NotContains(t, string(data), "empty_space_estimate")
}

func TestAnalysisResultRejectsScalar(t *testing.T) {
	var got AnalysisResult
	err := json.Unmarshal([]byte(`"free text"`), &got)
	assert.Error(t, err)
}

func TestRecordsFlattensShelves(t *testing.T) {
	result := StructuredResult(ShelfReport{
		Shelves: []Shelf{
			{Position: "top", Items: []SKURecord{{Name: "A"}, {Name: "B"}}},
			{Position: "bottom", Items: []SKURecord{{Name: "C"}}},
		},
	})

	records := result.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "C", records[2].Name)
}

func TestEmptyAnalysisResultIsWellFormed(t *testing.T) {
	result := EmptyAnalysisResult()
	require.NotNil(t, result.Report)
	assert.Empty(t, result.Report.Shelves)
	assert.Zero(t, result.Report.Metadata.TotalItems)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"metadata": {"total_items": 0, "out_of_stock_positions": 0, "empty_space_percentage": 0}, "shelves": []}`, string(data))
}
