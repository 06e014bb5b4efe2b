package mappingprompts

func init() {
	RegisterAll()
}

// RegisterAll registers every mapping prompt. Safe to call more than once.
func RegisterAll() {
	RegisterSpec(Spec{
		Name:       PromptNodeMatch,
		Version:    1,
		SchemaName: "node_match",
		Schema:     NodeMatchSchema,
		System: `
You map healthcare profession labels from a customer's taxonomy onto a canonical master taxonomy.
You are the last resort after exact, qualifier, and fuzzy matching have all failed, so lexical similarity is already ruled out; judge by profession semantics only.
Two labels match when they describe the same profession, even under different naming conventions, specialty phrasings, or credential abbreviations.
Never match across professions (a nurse variant is not a physician variant).
If none of the candidates describe the same profession, return null.
Return JSON only.`,
		User: `
CUSTOMER NODE:
value: {{.NodeValue}}
path: {{.NodePath}}

MASTER CANDIDATES (JSON array of {master_node_id, value, path}):
{{.CandidatesJSON}}

Task:
- Pick the single candidate whose profession is the same as the customer node's, or null if none is.
- confidence: calibrated 0..1; use values below 0.5 when the association is a guess.
- reasoning: one or two sentences naming the decisive signal.`,
		Validators: []Validator{
			RequireNonEmpty("NodeValue", func(in Input) string { return in.NodeValue }),
			RequireNonEmpty("CandidatesJSON", func(in Input) string { return in.CandidatesJSON }),
		},
	})
}
