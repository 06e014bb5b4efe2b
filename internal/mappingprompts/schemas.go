package mappingprompts

// Schema helpers. OpenAI structured outputs run in strict mode, so every
// property is required and additionalProperties is false.

func objectSchema(props map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func numberSchema(desc string, min, max float64) map[string]any {
	return map[string]any{
		"type":        "number",
		"description": desc,
		"minimum":     min,
		"maximum":     max,
	}
}

func stringSchema(desc string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": desc,
	}
}

func nullableIntegerSchema(desc string) map[string]any {
	return map[string]any{
		"type":        []string{"integer", "null"},
		"description": desc,
	}
}

// NodeMatchSchema is the decision contract for the semantic match step:
// a winning candidate id (or null when nothing fits), a calibrated
// confidence, and a short justification for the audit trail.
func NodeMatchSchema() map[string]any {
	return objectSchema(map[string]any{
		"master_node_id": nullableIntegerSchema("ID of the best-matching candidate node, or null when no candidate represents the same profession."),
		"confidence":     numberSchema("Confidence that the chosen candidate and the input describe the same profession.", 0, 1),
		"reasoning":      stringSchema("One or two sentences explaining the decision."),
	}, []string{"master_node_id", "confidence", "reasoning"})
}
