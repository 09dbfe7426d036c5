package anthropic

// JSON Schema fragments for tool inputs.

func stringProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

// stringMapProperty is an object with arbitrary keys and string values.
func stringMapProperty(description string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"description":          description,
		"additionalProperties": map[string]any{"type": "string"},
	}
}
