package inference

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONTakesOutermostBraces(t *testing.T) {
	text := "Here you go:\n```json\n{\"foodName\": \"Ramen\", \"nested\": {\"a\": 1}}\n```\nEnjoy!"
	assert.Equal(t, `{"foodName": "Ramen", "nested": {"a": 1}}`, ExtractJSON(text))
	assert.Equal(t, "no braces here", ExtractJSON("  no braces here \n"))
	assert.Equal(t, "} backwards {", ExtractJSON(" } backwards { "))
}

func TestParseEstimateReadsFreeFormReply(t *testing.T) {
	reply := "Sure! {\"foodName\": \" Chicken salad \", \"calories\": 349.6, \"protein\": \"31.5\", " +
		"\"carbs\": 12, \"fat\": null, \"fiber\": \"n/a\", \"servingSize\": \"1 bowl\", \"confidence\": 140}"

	estimate, err := ParseEstimate(reply)
	require.NoError(t, err)

	assert.Equal(t, Estimate{
		FoodName:    "Chicken salad",
		Calories:    350,
		Protein:     31.5,
		Carbs:       12,
		Fat:         0,
		Fiber:       0,
		ServingSize: "1 bowl",
		Confidence:  100,
	}, estimate)
}

func TestParseEstimateClampsNegativeConfidence(t *testing.T) {
	estimate, err := ParseEstimate(`{"foodName":"Toast","calories":90,"confidence":-5}`)
	require.NoError(t, err)
	assert.Zero(t, estimate.Confidence)
	assert.Equal(t, 90, estimate.Calories)
}

func TestParseEstimateRejectsUnparseableText(t *testing.T) {
	for _, reply := range []string{
		"I cannot identify any food in this picture.",
		"",
		"{\"foodName\": \"Pizza\", \"calories\": }",
	} {
		_, err := ParseEstimate(reply)
		assert.Truef(t, errors.Is(err, ErrMalformedEstimate), "reply %q: expected malformed estimate, got %v", reply, err)
	}
}

func TestClassifyProviderMessage(t *testing.T) {
	assert.ErrorIs(t, classifyProviderMessage("API key not valid. API_KEY_INVALID"), ErrInvalidAPIKey)
	assert.ErrorIs(t, classifyProviderMessage("QUOTA_EXCEEDED for project"), ErrQuotaExceeded)
	assert.ErrorIs(t, classifyProviderMessage("models/gemini-0 is not found"), ErrModelNotFound)
	assert.ErrorIs(t, classifyProviderMessage("status 500"), ErrRemoteCall)

	for _, specific := range []error{ErrInvalidAPIKey, ErrQuotaExceeded, ErrModelNotFound} {
		assert.ErrorIs(t, specific, ErrRemoteCall)
	}
}

func TestPromptsIncludeLocationContext(t *testing.T) {
	location := &LocationHint{City: "Lyon", Country: "France"}

	assert.Contains(t, imagePrompt(location), "Location context: Lyon, France")
	assert.NotContains(t, imagePrompt(nil), "Location context")
	assert.NotContains(t, imagePrompt(&LocationHint{}), "Location context")
	assert.Contains(t, namePrompt("croque monsieur", location), `"croque monsieur"`)
	assert.Contains(t, namePrompt("croque monsieur", nil), `"servingSize"`)
}

func TestPromptsOmitMissingLocationParts(t *testing.T) {
	cityOnly := imagePrompt(&LocationHint{City: "Paris", Country: " "})
	assert.Contains(t, cityOnly, "Location context: Paris\n")
	assert.NotContains(t, cityOnly, "Paris,")

	countryOnly := namePrompt("pho", &LocationHint{Country: "Vietnam"})
	assert.Contains(t, countryOnly, "Location context: Vietnam\n")
	assert.NotContains(t, countryOnly, ": , ")
}
