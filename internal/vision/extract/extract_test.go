package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/shelfscan/internal/apperr"
)

func TestJSONFencedBlock(t *testing.T) {
	reply := "Here is the shelf analysis you asked for:\n```json\n[{\"SKUBrand\": \"Coca-Cola\"}]\n```\nLet me know if you need anything else."

	raw, err := JSON(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"SKUBrand": "Coca-Cola"}]`, string(raw))
}

func TestJSONBareFence(t *testing.T) {
	reply := "```\n{\"metadata\": {\"total_items\": 2}, \"shelves\": []}\n```"

	raw, err := JSON(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"metadata": {"total_items": 2}, "shelves": []}`, string(raw))
}

func TestJSONBareArrayInProse(t *testing.T) {
	reply := `I identified the following products on the shelf: [{"SKUFullName": "Pepsi Max"}, {"SKUFullName": "Sprite"}] based on the image provided.`

	raw, err := JSON(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"SKUFullName": "Pepsi Max"}, {"SKUFullName": "Sprite"}]`, string(raw))
}

func TestJSONWholeReply(t *testing.T) {
	reply := `{"shelves": [{"position": "top", "items": []}]}`

	raw, err := JSON(reply)
	require.NoError(t, err)
	assert.JSONEq(t, reply, string(raw))
}

func TestJSONFencePreferredOverBareArray(t *testing.T) {
	reply := "Ignore [1, 2, 3] in the prose.\n```json\n[{\"SKUBrand\": \"Fanta\"}]\n```"

	raw, err := JSON(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"SKUBrand": "Fanta"}]`, string(raw))
}

func TestJSONNoPayload(t *testing.T) {
	for _, reply := range []string{
		"I am unable to analyze this image.",
		"```\nnot json at all\n```",
		"",
	} {
		_, err := JSON(reply)
		require.Error(t, err)
		assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
	}
}
