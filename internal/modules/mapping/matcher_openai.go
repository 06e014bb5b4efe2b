package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/carelattice/taxonomy-backend/internal/mappingprompts"
	"github.com/carelattice/taxonomy-backend/internal/platform/logger"
	"github.com/carelattice/taxonomy-backend/internal/platform/openai"
)

// openaiMatcher asks the configured OpenAI model to arbitrate matches the
// lexical strategies could not settle. One structured call per node.
type openaiMatcher struct {
	ai  openai.Client
	log *logger.Logger
}

func NewOpenAIMatcher(ai openai.Client, log *logger.Logger) SemanticMatcher {
	if ai == nil {
		return nil
	}
	return &openaiMatcher{ai: ai, log: log.With("service", "SemanticMatcher")}
}

type nodeMatchCandidate struct {
	MasterNodeID int64  `json:"master_node_id"`
	Value        string `json:"value"`
	Path         string `json:"path"`
}

type nodeMatchOut struct {
	MasterNodeID *int64  `json:"master_node_id"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

func (m *openaiMatcher) Match(ctx context.Context, req SemanticRequest) (*SemanticDecision, error) {
	cands := make([]nodeMatchCandidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		cands = append(cands, nodeMatchCandidate{
			MasterNodeID: c.MasterNodeID,
			Value:        c.Value,
			Path:         strings.Join(c.Path, " > "),
		})
	}
	candJSON, err := json.Marshal(cands)
	if err != nil {
		return nil, err
	}

	prompt, err := mappingprompts.Build(mappingprompts.PromptNodeMatch, mappingprompts.Input{
		NodeValue:      req.Value,
		NodePath:       strings.Join(req.Path, " > "),
		CandidatesJSON: string(candJSON),
	})
	if err != nil {
		return nil, err
	}

	obj, err := m.ai.GenerateJSON(ctx, prompt.System, prompt.User, prompt.SchemaName, prompt.Schema)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(obj)
	var out nodeMatchOut
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("node_match: invalid model output: %w", err)
	}

	if m.log != nil {
		chosen := int64(-1)
		if out.MasterNodeID != nil {
			chosen = *out.MasterNodeID
		}
		m.log.Debug("Semantic verdict",
			"value", req.Value,
			"candidates", len(cands),
			"master_node_id", chosen,
			"confidence", out.Confidence,
		)
	}

	return &SemanticDecision{
		MasterNodeID: out.MasterNodeID,
		Confidence:   out.Confidence,
		Reasoning:    strings.TrimSpace(out.Reasoning),
	}, nil
}
