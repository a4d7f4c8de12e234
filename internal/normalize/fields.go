package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/openshelf/shelfscan/pkg/models"
)

// Alias tables map the field spellings seen in model output to canonical
// fields. First match wins, so the model's preferred names lead each list.
var (
	brandAliases       = []string{"SKUBrand", "brand", "Brand"}
	nameAliases        = []string{"SKUFullName", "sku_name", "product", "name"}
	countAliases       = []string{"NumberFacings", "sku_count", "visibility", "count"}
	priceAliases       = []string{"PriceSKU", "sku_price", "price"}
	positionAliases    = []string{"ShelfSection", "sku_position", "position"}
	confidenceAliases  = []string{"Confidence", "sku_confidence", "confidence"}
	outOfStockAliases  = []string{"OutofStock", "out_of_stock", "outOfStock"}
	emptySpaceAliases  = []string{"EmptySpaceEstimate", "empty_space_estimate"}
	colorAliases       = []string{"Color", "color"}
	packageSizeAliases = []string{"PackSize", "package_size"}
)

const maxPrice = 1_000_000

var digitsRe = regexp.MustCompile(`\d+`)

func lookup(fields map[string]any, aliases []string) any {
	for _, alias := range aliases {
		if v, ok := fields[alias]; ok && v != nil {
			return v
		}
	}
	return nil
}

// resolveConfidence resolves a row's confidence tier. Numeric scores are
// bucketed into tiers, string tiers pass through canonicalization so an
// already-canonical record keeps its label, and the nested
// BoundingBox.confidence form some replies use is accepted as a fallback.
func resolveConfidence(fields map[string]any) string {
	if v := lookup(fields, confidenceAliases); v != nil {
		if f, ok := asFloat(v); ok {
			return confidenceTier(f, true)
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return canonicalTier(s)
		}
	}
	if box, ok := fields["BoundingBox"].(map[string]any); ok {
		if f, ok := asFloat(box["confidence"]); ok {
			return confidenceTier(f, true)
		}
	}
	return models.ConfidenceMedium
}

// confidenceTier maps a numeric score to a tier label. Records without a
// score are treated as medium rather than penalized.
func confidenceTier(score float64, found bool) string {
	switch {
	case !found:
		return models.ConfidenceMedium
	case score >= 0.9:
		return models.ConfidenceHigh
	case score >= 0.7:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func canonicalTier(tier string) string {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case models.ConfidenceHigh:
		return models.ConfidenceHigh
	case models.ConfidenceLow:
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}

// parseCount coerces a facing count from a number, numeric string, or free
// text containing digits. When no digits are present, a visible product
// defaults to one facing and an out-of-stock slot to zero.
func parseCount(v any, outOfStock bool) int {
	fallback := 1
	if outOfStock {
		fallback = 0
	}
	switch value := v.(type) {
	case float64:
		if value < 0 {
			return fallback
		}
		return int(value)
	case string:
		if m := digitsRe.FindString(value); m != "" {
			if n, err := strconv.Atoi(m); err == nil {
				return n
			}
		}
		return fallback
	case bool:
		if value {
			return 1
		}
		return 0
	default:
		return fallback
	}
}

// parsePrice coerces a price from a number or a currency-annotated string.
// Unparseable input maps to zero so a bad price never drops the record.
func parsePrice(v any) float64 {
	switch value := v.(type) {
	case float64:
		return clampPrice(value)
	case string:
		return clampPrice(parsePriceString(value))
	default:
		return 0
	}
}

func parsePriceString(s string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' || r == ',' || r == '-' {
			return r
		}
		return -1
	}, s)
	// European decimal commas are only rewritten when no dot competes.
	if strings.Contains(cleaned, ",") && !strings.Contains(cleaned, ".") {
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

func clampPrice(f float64) float64 {
	if f < 0 || f != f {
		return 0
	}
	if f > maxPrice {
		return maxPrice
	}
	return f
}

func asString(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case string:
		return strings.EqualFold(strings.TrimSpace(value), "true") ||
			strings.EqualFold(strings.TrimSpace(value), "yes")
	default:
		return false
	}
}

func asFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func firstByte(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
