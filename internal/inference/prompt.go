package inference

import (
	"fmt"
	"strings"
)

// LocationHint narrows estimates to regional dishes and portion sizes.
type LocationHint struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

func (h *LocationHint) context() string {
	if h == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	for _, part := range []string{h.City, h.Country} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Location context: " + strings.Join(parts, ", ")
}

const responseShape = `Please provide ONLY a JSON response in this exact format:
{
  "foodName": "specific food name",
  "calories": number,
  "protein": number,
  "carbs": number,
  "fat": number,
  "fiber": number,
  "servingSize": "description",
  "confidence": number (0-100)
}`

func imagePrompt(location *LocationHint) string {
	var builder strings.Builder
	builder.WriteString("Analyze this food image and provide detailed calorie information.\n")
	if hint := location.context(); hint != "" {
		builder.WriteString(hint)
		builder.WriteString("\n")
	}
	builder.WriteString("\n")
	builder.WriteString(responseShape)
	builder.WriteString("\n\nBe as accurate as possible with calorie estimation based on visible portion size.\n")
	return builder.String()
}

func namePrompt(foodName string, location *LocationHint) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Provide detailed calorie information for one typical serving of %q.\n", foodName)
	if hint := location.context(); hint != "" {
		builder.WriteString(hint)
		builder.WriteString("\n")
	}
	builder.WriteString("\n")
	builder.WriteString(responseShape)
	builder.WriteString("\n\nBase the estimate on a standard portion size.\n")
	return builder.String()
}
